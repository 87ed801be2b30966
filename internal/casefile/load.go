package casefile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads and validates a case definition from a JSON or YAML file.
// Malformed documents and dangling block/intent references fail here, at
// load time, never at query time.
func Load(path string) (*Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("casefile: read %s: %w", path, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return ParseJSON(data)
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return nil, fmt.Errorf("casefile: unsupported case file extension %q", ext)
	}
}

// ParseJSON parses and validates a JSON case document.
func ParseJSON(data []byte) (*Case, error) {
	var c Case
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("casefile: parse json: %w", err)
	}
	if err := c.init(); err != nil {
		return nil, err
	}
	return &c, nil
}

// ParseYAML parses and validates a YAML case document.
func ParseYAML(data []byte) (*Case, error) {
	var c Case
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("casefile: parse yaml: %w", err)
	}
	if err := c.init(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Case) init() error {
	if err := c.buildIndexes(); err != nil {
		return err
	}
	return c.validate()
}

func (c *Case) buildIndexes() error {
	c.blockIndex = make(map[string]int, len(c.Blocks))
	c.groups = make(map[string][]int)
	for i, b := range c.Blocks {
		if b.ID == "" {
			return fmt.Errorf("casefile: block at index %d has no id", i)
		}
		if _, dup := c.blockIndex[b.ID]; dup {
			return fmt.Errorf("casefile: duplicate block id %q", b.ID)
		}
		c.blockIndex[b.ID] = i
		if b.GroupID != "" {
			c.groups[b.GroupID] = append(c.groups[b.GroupID], i)
		}
	}

	// Group members are kept in ascending (level, declaration) order so
	// escalation walks are a plain scan.
	for gid, idxs := range c.groups {
		sort.SliceStable(idxs, func(a, b int) bool {
			return c.Blocks[idxs[a]].Level < c.Blocks[idxs[b]].Level
		})
		c.groups[gid] = idxs
	}

	c.intentIndex = make(map[string]int, len(c.Intents))
	for i, in := range c.Intents {
		if in.ID == "" {
			return fmt.Errorf("casefile: intent at index %d has no id", i)
		}
		if _, dup := c.intentIndex[in.ID]; dup {
			return fmt.Errorf("casefile: duplicate intent id %q", in.ID)
		}
		c.intentIndex[in.ID] = i
	}
	return nil
}

func (c *Case) validate() error {
	if c.ID == "" {
		return fmt.Errorf("casefile: case has no caseId")
	}
	if len(c.Blocks) == 0 {
		return fmt.Errorf("casefile: case %s has no information blocks", c.ID)
	}

	knownCtx := make(map[Context]struct{}, len(KnownContexts))
	for _, ctx := range KnownContexts {
		knownCtx[ctx] = struct{}{}
	}

	for _, b := range c.Blocks {
		// Group and block namespaces must not collide: a mapping target is
		// interpreted as a group first.
		if _, clash := c.blockIndex[b.GroupID]; b.GroupID != "" && clash {
			return fmt.Errorf("casefile: block %s: group id %q collides with a block id", b.ID, b.GroupID)
		}
		if b.GroupID != "" && b.Level < 1 {
			return fmt.Errorf("casefile: block %s: grouped blocks need a level >= 1", b.ID)
		}
		for _, req := range b.Prerequisites {
			if _, ok := c.blockIndex[req]; !ok {
				return fmt.Errorf("casefile: block %s: prerequisite %q does not exist", b.ID, req)
			}
			if req == b.ID {
				return fmt.Errorf("casefile: block %s: prerequisite references itself", b.ID)
			}
		}
	}

	for _, in := range c.Intents {
		if len(in.Contexts) == 0 {
			return fmt.Errorf("casefile: intent %s: no valid contexts declared", in.ID)
		}
		for _, ctx := range in.Contexts {
			if _, ok := knownCtx[ctx]; !ok {
				return fmt.Errorf("casefile: intent %s: unknown context %q", in.ID, ctx)
			}
		}
	}

	for intentID, targets := range c.IntentMappings {
		if _, ok := c.intentIndex[intentID]; !ok {
			return fmt.Errorf("casefile: intent mapping references unknown intent %q", intentID)
		}
		if len(targets) == 0 {
			return fmt.Errorf("casefile: intent %s: empty candidate list", intentID)
		}
		for _, target := range targets {
			if c.IsGroup(target) {
				continue
			}
			if _, ok := c.blockIndex[target]; !ok {
				return fmt.Errorf("casefile: intent %s: candidate %q is neither a block nor a group", intentID, target)
			}
		}
	}

	if a := c.BiasTriggers.Anchoring; a != nil && a.ContradictoryBlockID != "" {
		if _, ok := c.blockIndex[a.ContradictoryBlockID]; !ok {
			return fmt.Errorf("casefile: anchoring trigger references unknown block %q", a.ContradictoryBlockID)
		}
	}
	if conf := c.BiasTriggers.Confirmation; conf != nil {
		for _, id := range append(append([]string{}, conf.SupportingBlockIDs...), conf.RefutingBlockIDs...) {
			if _, ok := c.blockIndex[id]; !ok {
				return fmt.Errorf("casefile: confirmation trigger references unknown block %q", id)
			}
		}
	}
	for _, id := range c.GroundTruth.CriticalFindingIDs {
		if _, ok := c.blockIndex[id]; !ok {
			return fmt.Errorf("casefile: ground truth references unknown block %q", id)
		}
	}
	return nil
}
