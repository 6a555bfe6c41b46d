package scenario

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Step is a single node of a scripted call flow. Step numbers are 1-based
// and unique within a scenario.
type Step struct {
	Step            int    `json:"step"`
	Type            string `json:"type"` // "statement" or "question"
	AgentSays       string `json:"agent_says"`
	QuestionID      string `json:"question_id,omitempty"`
	Validation      string `json:"validation,omitempty"` // yes_no, name, city, address, free_text
	WaitForResponse *bool  `json:"wait_for_response,omitempty"`
	EndCall         bool   `json:"end_call,omitempty"`
	SendWebhook     bool   `json:"send_webhook,omitempty"`
	NextStep        int    `json:"next_step,omitempty"`
	NextStepIfYes   int    `json:"next_step_if_yes,omitempty"`
	NextStepIfNo    int    `json:"next_step_if_no,omitempty"`
}

// Waits reports whether the flow pauses for a user turn after this step.
// Absent means true.
func (s *Step) Waits() bool {
	return s.WaitForResponse == nil || *s.WaitForResponse
}

// Scenario is one pre-authored call flow plus the template of fields it
// collects along the way.
type Scenario struct {
	Name           string            `json:"name,omitempty"`
	Description    string            `json:"description,omitempty"`
	Flow           []Step            `json:"flow"`
	DataCollection map[string]string `json:"data_collection,omitempty"`
}

// DemoAddress is an entry of the auxiliary address pool used to fill the
// [ADDRESS] placeholder in outbound scripts.
type DemoAddress struct {
	Address string `json:"address"`
}

// Library holds every loaded scenario keyed by id, plus shared demo data.
type Library struct {
	Scenarios     map[string]*Scenario `json:"scenarios"`
	DemoAddresses []DemoAddress        `json:"demo_addresses,omitempty"`
}

// LoadLibrary reads a scenario document from disk.
func LoadLibrary(path string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: read %s: %w", path, err)
	}
	var lib Library
	if err := json.Unmarshal(data, &lib); err != nil {
		return nil, fmt.Errorf("scenario: parse %s: %w", path, err)
	}
	if lib.Scenarios == nil {
		lib.Scenarios = map[string]*Scenario{}
	}
	return &lib, nil
}

// IDs returns the scenario ids in stable order.
func (l *Library) IDs() []string {
	ids := make([]string, 0, len(l.Scenarios))
	for id := range l.Scenarios {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
