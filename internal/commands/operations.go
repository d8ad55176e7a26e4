package commands

// Operation describes a streamed command: which command type to resolve, the
// base name of its Output/Done event pair, and whether update noise is
// stripped from its output.
type Operation struct {
	Command             string
	Event               string
	AppliesOutputFilter bool
}

var (
	UpdateOp       = Operation{Command: Update, Event: "update", AppliesOutputFilter: true}
	LogsOp         = Operation{Command: RealTimeLogs, Event: "logs"}
	ServerUpdateOp = Operation{Command: ServerUpdate, Event: "serverUpdate", AppliesOutputFilter: true}
)
