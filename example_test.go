package velocitybloom_test

import (
	"fmt"

	"github.com/danish45007/velocitybloom"
)

// This example demonstrates creating a filter sized for ten items at the
// default false positive rate and querying it.
func ExampleNewFilter() {
	f, err := velocitybloom.NewFilter(10)
	if err != nil {
		fmt.Println(err)
		return
	}

	f.Add([]byte("hello"))
	f.Add([]byte("world"))

	fmt.Println("bits:", f.Bits(), "probes:", f.Probes())
	fmt.Println("hello:", f.Check([]byte("hello")))
	fmt.Println("world:", f.Check([]byte("world")))
	fmt.Println("count:", f.Count())

	// Output:
	// bits: 96 probes: 7
	// hello: true
	// world: true
	// count: 2
}

// This example demonstrates that inserts past capacity are ignored.
func ExampleFilter_Accept() {
	f, _ := velocitybloom.NewFilter(1)
	fmt.Println(f.Accept([]byte("a")))
	fmt.Println(f.Accept([]byte("b")))
	fmt.Println(f.Check([]byte("a")))

	// Output:
	// true
	// false
	// true
}
