package archive

// Limits bounds what the encoder writes and the decoder accepts. Zero fields
// take the default.
type Limits struct {
	MaxModules      int
	MaxSpecifierLen uint32
	MaxHeadersLen   uint32
	MaxContentLen   uint32
	MaxSourceMapLen uint32
}

func defaultLimits() Limits {
	return Limits{
		MaxModules:      65_536,
		MaxSpecifierLen: 8 << 10,  // 8 KiB
		MaxHeadersLen:   64 << 10, // 64 KiB
		MaxContentLen:   64 << 20, // 64 MiB
		MaxSourceMapLen: 64 << 20, // 64 MiB
	}
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return defaultLimits()
}

func (l Limits) withDefaults() Limits {
	d := defaultLimits()
	if l.MaxModules == 0 {
		l.MaxModules = d.MaxModules
	}
	if l.MaxSpecifierLen == 0 {
		l.MaxSpecifierLen = d.MaxSpecifierLen
	}
	if l.MaxHeadersLen == 0 {
		l.MaxHeadersLen = d.MaxHeadersLen
	}
	if l.MaxContentLen == 0 {
		l.MaxContentLen = d.MaxContentLen
	}
	if l.MaxSourceMapLen == 0 {
		l.MaxSourceMapLen = d.MaxSourceMapLen
	}
	return l
}
