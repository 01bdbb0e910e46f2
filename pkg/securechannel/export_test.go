package securechannel

// CurrentIV exposes the rolling IV to tests.
func (e *Engine) CurrentIV() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil {
		return nil
	}
	return append([]byte(nil), e.sess.iv...)
}
