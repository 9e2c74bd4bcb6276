package bulkcap

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultUnknown(t *testing.T) {
	c := New()
	require.Equal(t, Unknown, c.CreateBulk("account"))
	require.Equal(t, Unknown, c.UpdateBulk("account"))
}

func TestResolveOnce(t *testing.T) {
	c := New()
	c.ResolveCreateBulk("account", Supported)
	require.Equal(t, Supported, c.CreateBulk("account"))

	// A later resolution must not overwrite the first observation.
	c.ResolveCreateBulk("account", NotSupported)
	require.Equal(t, Supported, c.CreateBulk("account"))
}

func TestCreateAndUpdateIndependent(t *testing.T) {
	c := New()
	c.ResolveCreateBulk("account", Supported)
	c.ResolveUpdateBulk("account", NotSupported)
	require.Equal(t, Supported, c.CreateBulk("account"))
	require.Equal(t, NotSupported, c.UpdateBulk("account"))
}

func TestConcurrentResolveAgreesOnSingleWinner(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		s := Supported
		if i%2 == 0 {
			s = NotSupported
		}
		go func(s State) {
			defer wg.Done()
			c.ResolveCreateBulk("account", s)
		}(s)
	}
	wg.Wait()
	require.NotEqual(t, Unknown, c.CreateBulk("account"))
}
