package project

import (
	"shiphouse/internal/errs"
	"shiphouse/internal/secrets"
)

// BuiltEnv is the output of resolving a project's env entries into a
// form the process runner can merge into a child environment.
type BuiltEnv struct {
	// Plain holds KEY=value pairs for non-secret entries.
	Plain map[string]string
	// Secret holds KEY=value pairs for decrypted secret entries.
	Secret map[string]string
	// Keys lists every key that must be redacted in subprocess output,
	// in insertion order.
	Keys []string
}

// BuildEnv decrypts and merges a project's env entries. Entries
// without a key are ignored. A secret entry must carry either an
// EncryptedValue (decrypted here) or a transient Value (used as-is,
// e.g. supplied fresh by a caller that hasn't persisted it yet). Any
// decryption failure fails the whole build with SecretDecrypt.
func BuildEnv(entries []EnvEntry, codec *secrets.Codec) (*BuiltEnv, error) {
	out := &BuiltEnv{
		Plain:  make(map[string]string),
		Secret: make(map[string]string),
	}

	for _, e := range entries {
		if e.Key == "" {
			continue
		}

		if !e.IsSecret {
			if e.Value != nil {
				out.Plain[e.Key] = *e.Value
			}
			continue
		}

		out.Keys = append(out.Keys, e.Key)

		if e.Value != nil {
			out.Secret[e.Key] = *e.Value
			continue
		}
		if e.EncryptedValue == nil {
			return nil, errs.New(errs.KindSecretDecrypt, "secret entry "+e.Key+" has no value to decrypt")
		}

		plain, err := codec.Decrypt(*e.EncryptedValue)
		if err != nil {
			return nil, errs.Wrap(errs.KindSecretDecrypt, "Failed to decrypt secrets: "+e.Key, err)
		}
		out.Secret[e.Key] = plain
	}

	return out, nil
}

// Merged returns plain and secret values combined into one map,
// secrets taking precedence on key collision (should not happen given
// the unique-keys invariant, but favors not silently dropping a
// secret).
func (b *BuiltEnv) Merged() map[string]string {
	merged := make(map[string]string, len(b.Plain)+len(b.Secret))
	for k, v := range b.Plain {
		merged[k] = v
	}
	for k, v := range b.Secret {
		merged[k] = v
	}
	return merged
}

// EnvUpdate is a single entry as submitted by a project update
// request: a cleartext Value is optional when IsSecret is true and
// the stored EncryptedValue should simply be kept.
type EnvUpdate struct {
	Key      string  `json:"key"`
	IsSecret bool    `json:"isSecret"`
	Value    *string `json:"value,omitempty"`
}

// NormalizeForWrite applies the env-formatting-on-write rules: a
// secret entry with a fresh cleartext Value is (re)encrypted; a
// secret entry without one reuses the previously stored
// EncryptedValue; a secret entry with neither fails
// SecretMissingValue. Plain entries pass through as-is. Downgrading a
// previously-secret key to plain is rejected with SecretDowngrade —
// the validator is expected to catch this earlier, but the store
// enforces it too since it is the last line of defense against
// leaking a secret to a subsequent plaintext read.
func NormalizeForWrite(updates []EnvUpdate, existing []EnvEntry, codec *secrets.Codec) ([]EnvEntry, error) {
	existingByKey := make(map[string]EnvEntry, len(existing))
	for _, e := range existing {
		existingByKey[e.Key] = e
	}

	out := make([]EnvEntry, 0, len(updates))
	for _, u := range updates {
		if u.Key == "" {
			continue
		}

		prior, hadPrior := existingByKey[u.Key]
		if hadPrior && prior.IsSecret && !u.IsSecret {
			return nil, errs.New(errs.KindSecretDowngrade, "key "+u.Key+" was secret and cannot become plain")
		}

		if !u.IsSecret {
			entry := EnvEntry{Key: u.Key, IsSecret: false}
			if u.Value != nil {
				entry.Value = u.Value
			}
			out = append(out, entry)
			continue
		}

		entry := EnvEntry{Key: u.Key, IsSecret: true}
		switch {
		case u.Value != nil:
			blob, err := codec.Encrypt(*u.Value)
			if err != nil {
				return nil, errs.Wrap(errs.KindSecretDecrypt, "encrypting "+u.Key, err)
			}
			entry.EncryptedValue = &blob
		case hadPrior && prior.EncryptedValue != nil:
			entry.EncryptedValue = prior.EncryptedValue
		default:
			return nil, errs.New(errs.KindSecretMissingValue, "key "+u.Key+" is secret but has no value to encrypt")
		}
		out = append(out, entry)
	}

	return out, nil
}

// normalizeForWrite is the Store's hook into NormalizeForWrite, used
// by Create (where existing is always empty).
func (s *Store) normalizeForWrite(entries []EnvEntry, existing []EnvEntry) ([]EnvEntry, error) {
	updates := make([]EnvUpdate, 0, len(entries))
	for _, e := range entries {
		updates = append(updates, EnvUpdate{Key: e.Key, IsSecret: e.IsSecret, Value: e.Value})
	}
	return NormalizeForWrite(updates, existing, s.codec)
}
