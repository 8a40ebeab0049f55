package worker

import (
	"time"

	"github.com/ec-jrc/abcd-waveforms/internal/fsm"
)

// Terminate is the process-global terminate flag a signal handler
// flips; re-exported so cmd/ binaries don't need to import internal/fsm
// directly.
type Terminate = fsm.Terminate

// Run builds the shared state table for module and drives it to
// completion, matching the teacher's own "catch ctrl-C, then run the
// shutdown path" idiom in rpc_server.go's RunRPCServer, generalized
// here to the full state-machine-driven worker loop.
func Run(status *Status, module string, term *Terminate, basePeriod time.Duration) {
	start, onTerminate := States(module)
	fsm.Run(status, start, term, onTerminate, basePeriod, nil)
}
