package codec

// DefaultMaster returns a registry with the two concrete codecs GVRS ships:
// gzip (tag 0) and webp (tag 1), in that registration order.
func DefaultMaster() (*Master, error) {
	m := NewMaster()
	if err := m.Register(GzipCodec{}); err != nil {
		return nil, err
	}
	if err := m.Register(WebPCodec{}); err != nil {
		return nil, err
	}
	return m, nil
}
