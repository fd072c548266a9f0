package storage

import (
	"encoding/json"
	"fmt"
	"slices"
)

// publicReadPolicy returns a bucket policy granting anonymous GetObject on
// every object in bucket.
func publicReadPolicy(bucket string) (string, error) {
	policy := map[string]any{
		"Version": "2012-10-17",
		"Statement": []map[string]any{
			{
				"Sid":       "PublicRead",
				"Effect":    "Allow",
				"Principal": map[string]any{"AWS": []string{"*"}},
				"Action":    []string{"s3:GetObject"},
				"Resource":  []string{fmt.Sprintf("arn:aws:s3:::%s/*", bucket)},
			},
		},
	}
	b, err := json.Marshal(policy)
	if err != nil {
		return "", fmt.Errorf("marshal public policy: %w", err)
	}
	return string(b), nil
}

type policyDocument struct {
	Statement []policyStatement `json:"Statement"`
}

type policyStatement struct {
	Effect    string          `json:"Effect"`
	Principal json.RawMessage `json:"Principal"`
	Action    json.RawMessage `json:"Action"`
}

// policyAllowsPublicRead reports whether a bucket policy lets anyone read
// objects. Unparseable documents count as private.
func policyAllowsPublicRead(doc string) bool {
	if doc == "" {
		return false
	}
	var p policyDocument
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return false
	}
	for _, st := range p.Statement {
		if st.Effect != "Allow" || !anonymousPrincipal(st.Principal) {
			continue
		}
		actions := stringOrList(st.Action)
		if slices.Contains(actions, "s3:GetObject") || slices.Contains(actions, "s3:*") || slices.Contains(actions, "*") {
			return true
		}
	}
	return false
}

func anonymousPrincipal(raw json.RawMessage) bool {
	if slices.Contains(stringOrList(raw), "*") {
		return true
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return false
	}
	return slices.Contains(stringOrList(m["AWS"]), "*")
}

// stringOrList decodes a policy field that may be a string or a list.
func stringOrList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		return []string{one}
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		return many
	}
	return nil
}
