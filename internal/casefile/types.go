package casefile

// Context identifies the clinical phase a query is asked in. Each context is
// served by its own persona and accepts its own slice of the intent taxonomy.
type Context string

const (
	ContextAnamnesis Context = "anamnesis"
	ContextExam      Context = "exam"
	ContextLabs      Context = "labs"
)

// KnownContexts lists every context a case may reference.
var KnownContexts = []Context{ContextAnamnesis, ContextExam, ContextLabs}

// Intent is one entry of the case's intent taxonomy. Immutable after load.
type Intent struct {
	ID          string    `json:"intentId" yaml:"intentId"`
	Description string    `json:"description" yaml:"description"`
	Examples    []string  `json:"examples,omitempty" yaml:"examples,omitempty"`
	Category    string    `json:"category" yaml:"category"`
	Contexts    []Context `json:"contexts" yaml:"contexts"`
}

// ValidIn reports whether the intent may be classified in the given context.
func (i Intent) ValidIn(ctx Context) bool {
	for _, c := range i.Contexts {
		if c == ctx {
			return true
		}
	}
	return false
}

// Block is one atomic piece of revealable case information. The definition is
// static and shared; revealed state lives in session storage.
type Block struct {
	ID            string   `json:"blockId" yaml:"blockId"`
	Label         string   `json:"label" yaml:"label"`
	Category      string   `json:"category" yaml:"category"`
	Content       string   `json:"content" yaml:"content"`
	GroupID       string   `json:"groupId,omitempty" yaml:"groupId,omitempty"`
	Level         int      `json:"level,omitempty" yaml:"level,omitempty"`
	Prerequisites []string `json:"prerequisites,omitempty" yaml:"prerequisites,omitempty"`
	IsCritical    bool     `json:"isCritical,omitempty" yaml:"isCritical,omitempty"`
}

// AnchoringTrigger configures post-hoc anchoring analysis: the diagnosis a
// trainee is expected to anchor on and the block that contradicts it.
type AnchoringTrigger struct {
	AnchorDescription    string `json:"anchorDescription" yaml:"anchorDescription"`
	ContradictoryBlockID string `json:"contradictoryBlockId" yaml:"contradictoryBlockId"`
}

// ConfirmationTrigger configures confirmation-bias analysis: which blocks
// support the anchor diagnosis and which refute it.
type ConfirmationTrigger struct {
	SupportingBlockIDs []string `json:"supportingBlockIds" yaml:"supportingBlockIds"`
	RefutingBlockIDs   []string `json:"refutingBlockIds" yaml:"refutingBlockIds"`
}

// BiasTriggers holds optional case-specific bias analysis configuration.
type BiasTriggers struct {
	Anchoring    *AnchoringTrigger    `json:"anchoring,omitempty" yaml:"anchoring,omitempty"`
	Confirmation *ConfirmationTrigger `json:"confirmation,omitempty" yaml:"confirmation,omitempty"`
}

// GroundTruth records the case answer key used for evaluation.
type GroundTruth struct {
	FinalDiagnosis     string   `json:"finalDiagnosis,omitempty" yaml:"finalDiagnosis,omitempty"`
	CriticalFindingIDs []string `json:"criticalFindingIds,omitempty" yaml:"criticalFindingIds,omitempty"`
}

// Case is the static container for one clinical case: blocks, intent
// taxonomy, and the intent→candidate-block mapping. Loaded once, never
// mutated at runtime.
type Case struct {
	ID             string              `json:"caseId" yaml:"caseId"`
	Title          string              `json:"title,omitempty" yaml:"title,omitempty"`
	Blocks         []Block             `json:"informationBlocks" yaml:"informationBlocks"`
	Intents        []Intent            `json:"intents" yaml:"intents"`
	IntentMappings map[string][]string `json:"intentBlockMappings" yaml:"intentBlockMappings"`
	BiasTriggers   BiasTriggers        `json:"biasTriggers,omitempty" yaml:"biasTriggers,omitempty"`
	GroundTruth    GroundTruth         `json:"groundTruth,omitempty" yaml:"groundTruth,omitempty"`

	blockIndex  map[string]int
	intentIndex map[string]int
	groups      map[string][]int
}

// Block returns the block definition for id.
func (c *Case) Block(id string) (Block, bool) {
	i, ok := c.blockIndex[id]
	if !ok {
		return Block{}, false
	}
	return c.Blocks[i], true
}

// BlockOrder returns the declaration index of a block, used as the final
// resolution tie-break.
func (c *Case) BlockOrder(id string) int {
	if i, ok := c.blockIndex[id]; ok {
		return i
	}
	return len(c.Blocks)
}

// Intent returns the taxonomy entry for id.
func (c *Case) Intent(id string) (Intent, bool) {
	i, ok := c.intentIndex[id]
	if !ok {
		return Intent{}, false
	}
	return c.Intents[i], true
}

// IsGroup reports whether id names an escalation group, i.e. at least one
// block declares it as its group.
func (c *Case) IsGroup(id string) bool {
	_, ok := c.groups[id]
	return ok
}

// GroupBlocks returns the blocks of a group in ascending (level, declaration)
// order.
func (c *Case) GroupBlocks(groupID string) []Block {
	idxs := c.groups[groupID]
	blocks := make([]Block, 0, len(idxs))
	for _, i := range idxs {
		blocks = append(blocks, c.Blocks[i])
	}
	return blocks
}

// IntentsForContext returns the taxonomy entries valid in the given context,
// in declaration order. An empty result means the context is unknown to the
// case.
func (c *Case) IntentsForContext(ctx Context) []Intent {
	var out []Intent
	for _, in := range c.Intents {
		if in.ValidIn(ctx) {
			out = append(out, in)
		}
	}
	return out
}

// Candidates returns the candidate block/group ids mapped to an intent, in
// mapping order.
func (c *Case) Candidates(intentID string) []string {
	return c.IntentMappings[intentID]
}
