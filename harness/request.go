package harness

// GenArgs holds per-request generation arguments. Zero values select the
// adapter defaults: an empty Until list stops on the model's EOS token only,
// a zero MaxLength uses the configured MaxGenToks.
type GenArgs struct {
	Until     []string
	MaxLength int
}

// Request pairs a prompt with its generation arguments. A request is
// immutable once constructed and consumed exactly once by GenerateUntil.
type Request struct {
	Prompt string
	Args   GenArgs
}

// LM is the capability surface a model adapter exposes to the evaluation
// harness. GenerateUntil returns one completion slice per request, in the
// same order and cardinality as the input. The task name is carried into
// logs and the generation cache; numGenerations above one switches the
// adapter to seeded sampling and returns that many completions per request.
type LM interface {
	GenerateUntil(requests []Request, task string, numGenerations int) ([][]string, error)
	EOSToken() string
	Close() error
}
