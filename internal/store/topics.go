package store

import (
	"fmt"
	"sort"
	"strings"
)

// TopicSummary is a KB-04 sub-index entry under topic_index/{agent_id}/{topic_id},
// avoiding a linear scan over the full conversation history to answer
// "what have we discussed about X" queries. Ported from topic_indexer.rs;
// similarity here is a keyword-overlap score rather than a vector embedding
// (see DESIGN.md for why no embedding collaborator is wired into this pass).
type TopicSummary struct {
	TopicID             string `json:"topic_id"`
	Topic               string `json:"topic"`
	ConversationStartKey string `json:"conversation_start_key"`
	Keywords            []string `json:"keywords"`
}

const topicIndexPrefix = "topic_index/"

func topicKey(agentID, topicID string) string {
	return fmt.Sprintf("%s%s/%s", topicIndexPrefix, agentID, topicID)
}

func (s *Store) PutTopicSummary(agentID string, t TopicSummary) error {
	return InsertJSON(s, SlotChronos, topicKey(agentID, t.TopicID), t)
}

func (s *Store) ListTopicSummaries(agentID string) ([]TopicSummary, error) {
	kvs, err := s.ScanPrefix(SlotChronos, fmt.Sprintf("%s%s/", topicIndexPrefix, agentID))
	if err != nil {
		return nil, err
	}
	out := make([]TopicSummary, 0, len(kvs))
	for _, kv := range kvs {
		var t TopicSummary
		if err := unmarshalKV(kv, &t); err == nil {
			out = append(out, t)
		}
	}
	return out, nil
}

// SearchTopics ranks stored topics for agentID by keyword overlap against
// query, descending. Ties break on topic_id for determinism.
func (s *Store) SearchTopics(agentID, query string) ([]TopicSummary, error) {
	all, err := s.ListTopicSummaries(agentID)
	if err != nil {
		return nil, err
	}
	qWords := wordSet(query)
	type scored struct {
		t     TopicSummary
		score int
	}
	scoredTopics := make([]scored, 0, len(all))
	for _, t := range all {
		score := 0
		for _, kw := range t.Keywords {
			if qWords[strings.ToLower(kw)] {
				score++
			}
		}
		if score > 0 {
			scoredTopics = append(scoredTopics, scored{t, score})
		}
	}
	sort.Slice(scoredTopics, func(i, j int) bool {
		if scoredTopics[i].score != scoredTopics[j].score {
			return scoredTopics[i].score > scoredTopics[j].score
		}
		return scoredTopics[i].t.TopicID < scoredTopics[j].t.TopicID
	})
	out := make([]TopicSummary, len(scoredTopics))
	for i, st := range scoredTopics {
		out[i] = st.t
	}
	return out, nil
}

func wordSet(s string) map[string]bool {
	words := strings.Fields(strings.ToLower(s))
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[strings.Trim(w, ".,!?;:\"'()")] = true
	}
	return set
}
