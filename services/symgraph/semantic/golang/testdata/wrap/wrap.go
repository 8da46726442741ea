package wrap

type Getter interface {
	Get() string
}

type Doer[T any] interface {
	Do() T
}

type Static struct{ v string }

func (s Static) Get() string { return s.v }

// Wrapper decorates a Getter.
type Wrapper struct {
	Getter
}

type Worker struct{}

func (Worker) Do() int { return 1 }

type Client struct {
	g Getter
	d Doer[int]
}

func (c *Client) Call() (string, int) {
	return c.g.Get(), c.d.Do()
}
