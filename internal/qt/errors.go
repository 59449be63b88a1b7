package qt

import "go.trai.ch/zerr"

var (
	// ErrResolutionMiss marks a candidate prefix without a usable Qt. It never escapes Find on
	// its own.
	ErrResolutionMiss  = zerr.New("no usable Qt at prefix")
	ErrVersionMismatch = zerr.New("Qt version does not fit the requested range")
	ErrQtNotFound      = zerr.New("no matching Qt for the requested version")

	ErrUnknownLibrary  = zerr.New("unknown Qt library")
	ErrLibraryNotFound = zerr.New("Qt library not found")
	ErrNotFound        = zerr.New("no candidate found")

	ErrExternalTool       = zerr.New("external tool failed")
	ErrUnsupportedBuilder = zerr.New("unexpected moc dependency")
	ErrPhaseOrder         = zerr.New("object dependencies changed after link assembly")
	ErrInvalidVersion     = zerr.New("invalid version")
)
