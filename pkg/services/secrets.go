package services

import (
	"fmt"
	"strings"
)

// SecretResolver hands out the raw signing secret of a webhook. It returns
// "" when the secret is unknown.
type SecretResolver interface {
	Secret(webhookID string) string
}

// StaticSecrets resolves secrets from a fixed webhook id to secret map.
type StaticSecrets map[string]string

func (s StaticSecrets) Secret(webhookID string) string {
	return s[webhookID]
}

// ParseSecrets reads "webhookID=secret,webhookID=secret" pairs.
func ParseSecrets(raw string) (StaticSecrets, error) {
	secrets := StaticSecrets{}

	for pair := range strings.SplitSeq(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		id, secret, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(id) == "" || secret == "" {
			return nil, fmt.Errorf("%w: webhook secret entry %q must look like id=secret", ErrInvalidRequest, pair)
		}

		secrets[strings.TrimSpace(id)] = secret
	}

	return secrets, nil
}
