package setup

// Step numbers of the fixed provisioning sequence. The order is part of
// the contract: each step consumes the output of the previous one.
const (
	StepDetectRepo  = 1
	StepAllocate    = 2
	StepConfigure   = 3
	StepCloneAndRun = 4
)

// StepName returns a short label for a step number.
func StepName(step int) string {
	switch step {
	case StepDetectRepo:
		return "detect repository"
	case StepAllocate:
		return "allocate machine"
	case StepConfigure:
		return "configure environment"
	case StepCloneAndRun:
		return "clone and boot"
	default:
		return "unknown"
	}
}

// StepResult is the tagged per-step outcome. One concrete type per step
// instead of a free-form details map, so consumers switch on the variant
// and get checked fields.
type StepResult interface {
	StepNumber() int
}

// RepoDetected is the result of step 1: the repository and branch exist
// and are reachable with the supplied credential.
type RepoDetected struct {
	Owner  string `json:"owner"`
	Repo   string `json:"repo"`
	Branch string `json:"branch"`
}

func (RepoDetected) StepNumber() int { return StepDetectRepo }

// MachineAllocated is the result of step 2: capacity reserved, nothing
// booted yet.
type MachineAllocated struct {
	AppName   string `json:"app_name"`
	MachineID string `json:"machine_id"`
	Region    string `json:"region"`
}

func (MachineAllocated) StepNumber() int { return StepAllocate }

// MachineConfigured is the result of step 3: env and port configuration
// written into the machine.
type MachineConfigured struct {
	Port    int      `json:"port"`
	EnvKeys []string `json:"env_keys,omitempty"`
}

func (MachineConfigured) StepNumber() int { return StepConfigure }

// ServerBooted is the result of step 4: the dev server is up and the
// preview URL is live.
type ServerBooted struct {
	PreviewURL string `json:"preview_url"`
	Port       int    `json:"port"`
	ProcessID  int    `json:"process_id"`
}

func (ServerBooted) StepNumber() int { return StepCloneAndRun }
