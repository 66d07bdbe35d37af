package conversation

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// CuratedTopics are offered when the user does not type their own.
var CuratedTopics = []string{
	"Gun control",
	"Climate policy",
	"Immigration",
	"Student loan forgiveness",
	"Social media regulation",
	"Universal basic income",
	"Criminal justice reform",
	"Work from home",
}

type topicsFile struct {
	Topics []string `yaml:"topics"`
}

// LoadTopics reads a topic list from a YAML file of the form
//
//	topics:
//	  - Gun control
//	  - Immigration
//
// An empty path returns CuratedTopics. Blank and duplicate entries are dropped.
func LoadTopics(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return append([]string(nil), CuratedTopics...), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topics file: %w", err)
	}

	var file topicsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse topics file %s: %w", path, err)
	}

	seen := make(map[string]struct{}, len(file.Topics))
	topics := make([]string, 0, len(file.Topics))
	for _, topic := range file.Topics {
		topic = strings.TrimSpace(topic)
		if topic == "" {
			continue
		}
		if _, dup := seen[topic]; dup {
			continue
		}
		seen[topic] = struct{}{}
		topics = append(topics, topic)
	}
	if len(topics) == 0 {
		return nil, errors.New("topics file lists no topics")
	}
	return topics, nil
}
