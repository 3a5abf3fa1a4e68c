package password

type Scheme string

const (
	SchemeArgon2id     Scheme = "argon2id"
	SchemeArgon2SHA256 Scheme = "argon2-sha256"
	SchemeBcrypt       Scheme = "bcrypt"
	SchemePBKDF2       Scheme = "pbkdf2-sha256"
	SchemeSHA256       Scheme = "sha256"
)

type Kind int

const (
	KindModern Kind = iota
	KindLegacyIterated
	KindLegacyDigest
)

func (s Scheme) Kind() Kind {
	switch s {
	case SchemeArgon2id:
		return KindModern
	case SchemeSHA256:
		return KindLegacyDigest
	default:
		return KindLegacyIterated
	}
}

func (k Kind) String() string {
	switch k {
	case KindModern:
		return "modern-kdf"
	case KindLegacyIterated:
		return "legacy-iterated-kdf"
	case KindLegacyDigest:
		return "legacy-digest"
	}
	return "unknown"
}

// VerificationStrategy checks a plaintext against hashes of one scheme.
// Hashes of other formats return ErrUnrecognizedHash.
type VerificationStrategy interface {
	Scheme() Scheme
	Verify(plaintext string, stored string) (bool, error)
}

// Hasher is a strategy that can also produce new hashes.
type Hasher interface {
	VerificationStrategy
	Hash(plaintext string) (string, error)
}

// upgrader is implemented by hashers whose own hashes can go stale when the
// configured cost parameters are raised.
type upgrader interface {
	NeedsUpgrade(stored string) (bool, error)
}
