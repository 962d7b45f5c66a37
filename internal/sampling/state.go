package sampling

import (
	"github.com/reedessick/gpr-isotropy/internal/posterior"
	"github.com/reedessick/gpr-isotropy/internal/romodel"
)

// State is where the chain currently stands.
type State struct {
	// Iteration counts completed iterations. It is also the index the next
	// checkpoint record will carry.
	Iteration   int
	Ensemble    romodel.Ensemble
	LogProb     []float64
	EngineState []byte
}

func (s State) clone() State {
	out := State{
		Iteration: s.Iteration,
		Ensemble:  s.Ensemble.Clone(),
	}
	if s.LogProb != nil {
		out.LogProb = append([]float64(nil), s.LogProb...)
	}
	if s.EngineState != nil {
		out.EngineState = append([]byte(nil), s.EngineState...)
	}
	return out
}

// SessionConfig is the resolved, immutable description of a session.
type SessionConfig struct {
	Nside    int
	NPix     int
	NMaps    int
	NWalkers int
	NDim     int
	NWorkers int
	Seed     uint64
	Model    romodel.Descriptor
	Kernel   posterior.Descriptor
	Prior    posterior.Descriptor
}
