package sigv4

import "context"

// CredentialsProvider supplies the keys used at signing time.
type CredentialsProvider interface {
	Retrieve(ctx context.Context) (Credentials, error)
}

// StaticProvider always returns the same credentials, possibly empty.
type StaticProvider Credentials

func (p StaticProvider) Retrieve(context.Context) (Credentials, error) {
	return Credentials(p), nil
}
