package flow

import (
	"fmt"
	"log/slog"
)

type Operation string

const (
	OpFiles       Operation = "files"
	OpDatastreams Operation = "datastreams"
	OpResolve     Operation = "resolve"
	OpEntries     Operation = "entries"
	OpLoad        Operation = "load"
	OpScan        Operation = "scan"
	OpServe       Operation = "serve"

	OpLoadDetector  Operation = "load_detector"
	OpLoadSettings  Operation = "load_settings"
	OpLoadDSPPars   Operation = "load_dsp_pars"
	OpLoadCalPars   Operation = "load_cal_pars"
	OpSkimWaveforms Operation = "skim_waveforms"
	OpBrowse        Operation = "browse"
)

var operations = map[Operation]bool{
	OpFiles: true, OpDatastreams: true, OpResolve: true, OpEntries: true,
	OpLoad: true, OpScan: true, OpServe: true,
	OpLoadDetector: true, OpLoadSettings: true, OpLoadDSPPars: true,
	OpLoadCalPars: true, OpSkimWaveforms: true, OpBrowse: true,
}

// operationAliases maps legacy operation names to their current ones.
var operationAliases = map[string]Operation{
	"set_files":           OpFiles,
	"get_file_list":       OpFiles,
	"set_datastreams":     OpDatastreams,
	"get_tiers_for_col":   OpResolve,
	"gen_entry_list":      OpEntries,
	"gen_hit_entries":     OpEntries,
	"load_hits":           OpLoad,
	"load_evts":           OpLoad,
	"scan_files":          OpScan,
	"scan_tables_columns": OpScan,
}

// ResolveOperation returns the operation a name stands for and whether the
// name is a deprecated alias.
func ResolveOperation(name string) (Operation, bool, error) {
	if operations[Operation(name)] {
		return Operation(name), false, nil
	}
	if op, ok := operationAliases[name]; ok {
		return op, true, nil
	}
	return "", false, fmt.Errorf("%w: unknown operation %q", ErrConfiguration, name)
}

// BindOperation resolves name and warns once when it is deprecated.
func BindOperation(logger *slog.Logger, name string) (Operation, error) {
	op, deprecated, err := ResolveOperation(name)
	if err != nil {
		return "", err
	}
	if deprecated {
		logger.Warn("operation name is deprecated", "name", name, "use", string(op))
	}
	return op, nil
}
