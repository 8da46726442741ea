package repo

// Repo loads values by key.
type Repo interface {
	Get(key string) (string, error)
}

// RepoA is a map-backed Repo with a value receiver.
type RepoA struct {
	data map[string]string
}

// NewRepoA creates an empty RepoA.
func NewRepoA() RepoA {
	return RepoA{data: map[string]string{}}
}

func (r RepoA) Get(key string) (string, error) {
	return r.lookup(key), nil
}

func (r RepoA) lookup(key string) string {
	return r.data[key]
}

// RepoB is a Repo with a pointer receiver.
type RepoB struct{}

func (r *RepoB) Get(key string) (string, error) {
	return "", nil
}
