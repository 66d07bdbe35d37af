package persona

import (
	"errors"
	"strings"
)

// Persona is the generated conversation partner. It is created once per
// conversation and sent back verbatim by the client on every later call.
type Persona struct {
	Name           string   `json:"name"`
	Age            int      `json:"age"`
	Occupation     string   `json:"occupation"`
	Location       string   `json:"location"`
	Stance         string   `json:"stance"`
	OneLineSummary string   `json:"oneLineSummary"`
	CoreBeliefs    []string `json:"coreBeliefs"`
}

// Validate reports the first missing field. Generated personas must pass it;
// client-supplied personas are trusted as-is.
func (p Persona) Validate() error {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return errors.New("persona name is empty")
	case p.Age <= 0:
		return errors.New("persona age must be positive")
	case strings.TrimSpace(p.Occupation) == "":
		return errors.New("persona occupation is empty")
	case strings.TrimSpace(p.Location) == "":
		return errors.New("persona location is empty")
	case strings.TrimSpace(p.Stance) == "":
		return errors.New("persona stance is empty")
	case strings.TrimSpace(p.OneLineSummary) == "":
		return errors.New("persona summary is empty")
	case len(p.CoreBeliefs) == 0:
		return errors.New("persona has no core beliefs")
	}
	for _, belief := range p.CoreBeliefs {
		if strings.TrimSpace(belief) == "" {
			return errors.New("persona has an empty core belief")
		}
	}
	return nil
}
