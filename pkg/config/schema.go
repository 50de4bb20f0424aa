package config

// LibrarySpec is the on-disk document holding workflow definitions. A
// library file may declare fully authored graphs and simple linear plans;
// linear plans are compiled into equivalent graphs at load time so the
// engine has a single execution path.
type LibrarySpec struct {
	Graphs []GraphSpec      `yaml:"graphs"`
	Plans  []LinearPlanSpec `yaml:"plans"`
}

// GraphSpec is the YAML schema for a directed workflow graph.
type GraphSpec struct {
	ID             string              `yaml:"id"`
	Name           string              `yaml:"name"`
	StalenessTurns int                 `yaml:"staleness_turns"`
	Start          string              `yaml:"start"`
	Nodes          map[string]NodeSpec `yaml:"nodes"`
	Edges          []EdgeSpec          `yaml:"edges"`

	Triggers         []string `yaml:"triggers"`
	TriggerThreshold int      `yaml:"trigger_threshold"`
	Domains          []string `yaml:"domains"`
}

// NodeSpec is the YAML schema for one graph node. Which fields are
// required depends on Kind; the loader validates per kind.
type NodeSpec struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`

	// Task / checkpoint fields
	Action     string      `yaml:"action"`
	Tool       string      `yaml:"tool"`
	Hint       string      `yaml:"hint"`
	Verify     *VerifySpec `yaml:"verify"`
	MaxRetries int         `yaml:"max_retries"`

	// Decision fields
	PolicyKey string `yaml:"policy_key"`

	// Escalate fields
	Severity string `yaml:"severity"`
	Reason   string `yaml:"reason"`
}

// VerifySpec is the YAML schema for a verification check.
type VerifySpec struct {
	Type  string `yaml:"type"`
	Value string `yaml:"value"`
}

// EdgeSpec is the YAML schema for a directed edge. Edge order in the
// document is preserved and significant.
type EdgeSpec struct {
	From      string `yaml:"from"`
	To        string `yaml:"to"`
	Condition string `yaml:"condition"`
}

// LinearPlanSpec is the YAML schema for a simple ordered task list. It is
// adapted into a graph at load time.
type LinearPlanSpec struct {
	ID             string           `yaml:"id"`
	Name           string           `yaml:"name"`
	StalenessTurns int              `yaml:"staleness_turns"`
	Steps          []LinearStepSpec `yaml:"steps"`

	Triggers         []string `yaml:"triggers"`
	TriggerThreshold int      `yaml:"trigger_threshold"`
	Domains          []string `yaml:"domains"`
}

// LinearStepSpec is one step of a linear plan. OnFail selects the
// compiled failure policy: warn, retry, skip, or abort.
type LinearStepSpec struct {
	Name       string      `yaml:"name"`
	Action     string      `yaml:"action"`
	Tool       string      `yaml:"tool"`
	Hint       string      `yaml:"hint"`
	Verify     *VerifySpec `yaml:"verify"`
	MaxRetries int         `yaml:"max_retries"`
	OnFail     string      `yaml:"on_fail"`
}
