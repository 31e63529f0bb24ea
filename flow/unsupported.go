package flow

import "fmt"

func reserved(op Operation) error {
	return fmt.Errorf("%w: %s", ErrUnsupportedOperation, op)
}

func (l *Loader) LoadDetector(detID string) error {
	return reserved(OpLoadDetector)
}

func (l *Loader) LoadSettings() error {
	return reserved(OpLoadSettings)
}

func (l *Loader) LoadDSPPars(query string) error {
	return reserved(OpLoadDSPPars)
}

func (l *Loader) LoadCalPars(query string) error {
	return reserved(OpLoadCalPars)
}

func (l *Loader) SkimWaveforms(orientation string, entries []*EntryList) error {
	return reserved(OpSkimWaveforms)
}

func (l *Loader) Browse(query string, dspConfig string) error {
	return reserved(OpBrowse)
}

// Reserved runs one of the reserved operations by name.
func (l *Loader) Reserved(op Operation) error {
	switch op {
	case OpLoadDetector, OpLoadSettings, OpLoadDSPPars, OpLoadCalPars, OpSkimWaveforms, OpBrowse:
		return reserved(op)
	}
	return fmt.Errorf("%w: %s is not a reserved operation", ErrConfiguration, op)
}
