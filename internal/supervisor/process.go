package supervisor

import (
	"fmt"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/dlorp/synapse-engine-sub002/pkg/types"
)

// Spawner launches a model server process and returns a stop function.
type Spawner interface {
	Spawn(model types.Model, host string) (pid int, stop func() error, err error)
}

// termGrace is how long a stopped process gets to exit after SIGTERM before
// it is killed.
const termGrace = 5 * time.Second

// LlamaSpawner runs a llama-server binary per model on the model's
// registry-assigned port.
type LlamaSpawner struct {
	bin string
	log zerolog.Logger
}

// NewLlamaSpawner builds a spawner for the given llama-server binary.
func NewLlamaSpawner(bin string, log zerolog.Logger) *LlamaSpawner {
	return &LlamaSpawner{bin: bin, log: log}
}

func (l *LlamaSpawner) Spawn(model types.Model, host string) (int, func() error, error) {
	cmd := exec.Command(l.bin,
		"-m", model.Path,
		"--host", host,
		"--port", strconv.Itoa(model.Port),
	)
	if err := cmd.Start(); err != nil {
		return 0, nil, fmt.Errorf("start %s: %w", l.bin, err)
	}
	pid := cmd.Process.Pid

	// Reap the child when it exits so it never lingers as a zombie.
	waited := make(chan error, 1)
	go func() { waited <- cmd.Wait() }()

	stop := func() error {
		if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
			// Already gone is fine for an idempotent stop.
			return nil
		}
		select {
		case <-waited:
			return nil
		case <-time.After(termGrace):
			l.log.Warn().Int("pid", pid).Msg("process ignored SIGTERM, killing")
			_ = cmd.Process.Kill()
			<-waited
			return nil
		}
	}
	return pid, stop, nil
}
