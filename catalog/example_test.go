package catalog_test

import (
	"context"
	"fmt"

	"github.com/jonwraymond/cinecache/cache"
	"github.com/jonwraymond/cinecache/catalog"
	"github.com/jonwraymond/cinecache/origin/tmdb"
)

type stubOrigin struct {
	catalog.Origin
	calls int
}

func (o *stubOrigin) MovieDetails(_ context.Context, id int64) (tmdb.Movie, error) {
	o.calls++
	return tmdb.Movie{ID: id, Title: "Heat", Runtime: 170}, nil
}

func ExampleCatalog_MovieDetails() {
	facade, _ := cache.New(cache.NewMemoryStore())
	origin := &stubOrigin{}
	c, _ := catalog.New(facade, origin, nil)

	for i := 0; i < 2; i++ {
		m, _ := c.MovieDetails(context.Background(), 949)
		fmt.Println(m.Title, m.Runtime)
	}
	fmt.Println("origin calls:", origin.calls)
	// Output:
	// Heat 170
	// Heat 170
	// origin calls: 1
}

func ExampleCatalog_Accessors() {
	facade, _ := cache.New(cache.NewMemoryStore())
	c, _ := catalog.New(facade, &stubOrigin{}, nil)

	for _, a := range c.Accessors()[:3] {
		fmt.Println(a.Name, a.TTL)
	}
	// Output:
	// movie-details 1h0m0s
	// tv-details 1h0m0s
	// search 15m0s
}
