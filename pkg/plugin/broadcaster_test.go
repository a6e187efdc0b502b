package plugin_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/resock/resock-go/pkg/plugin"
	"github.com/resock/resock-go/pkg/plugin/mocks"
	"github.com/resock/resock-go/pkg/wire"
)

// singletonObserver is tagged as a singleton in tests that need one.
type singletonObserver struct{ id int }

func (s *singletonObserver) Observe(wire.Event) error { return nil }

func TestBroadcasterOrder(t *testing.T) {
	b := plugin.NewBroadcaster(plugin.Config{Catalog: plugin.NewCatalog()})

	var order []string
	for _, name := range []string{"first", "second", "third"} {
		name := name
		require.NoError(t, b.Register(plugin.Func(name, func(wire.Event) error {
			order = append(order, name)
			return nil
		})))
	}

	failed := b.Emit(wire.NewEvent(wire.EventInfo, wire.CodeNone, "hi"))
	assert.Equal(t, 0, failed)
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestBroadcasterIsolation(t *testing.T) {
	var faults []string
	b := plugin.NewBroadcaster(plugin.Config{
		Catalog: plugin.NewCatalog(),
		OnFault: func(name string, ev wire.Event, err error) {
			faults = append(faults, name)
		},
	})

	ev := wire.NewEvent(wire.EventMessage, wire.CodeNone, "")

	before := mocks.NewMockObserver(t)
	before.EXPECT().Observe(mock.Anything).Return(nil).Once()

	erroring := plugin.Func("erroring", func(wire.Event) error { return errors.New("bad plugin") })
	panicking := plugin.Func("panicking", func(wire.Event) error { panic("worse plugin") })

	after := mocks.NewMockObserver(t)
	after.EXPECT().Observe(mock.MatchedBy(func(got wire.Event) bool {
		return got.Type == wire.EventMessage
	})).Return(nil).Once()

	require.NoError(t, b.Register(before))
	require.NoError(t, b.Register(erroring))
	require.NoError(t, b.Register(panicking))
	require.NoError(t, b.Register(after))

	failed := b.Emit(ev)
	assert.Equal(t, 2, failed)
	assert.Equal(t, []string{"erroring", "panicking"}, faults)
}

func TestBroadcasterRegistry(t *testing.T) {
	t.Run("RegisterTwice", func(t *testing.T) {
		b := plugin.NewBroadcaster(plugin.Config{Catalog: plugin.NewCatalog()})
		o := plugin.Func("o", func(wire.Event) error { return nil })

		require.NoError(t, b.Register(o))
		assert.ErrorIs(t, b.Register(o), plugin.ErrAlreadyRegistered)
		assert.Equal(t, 1, b.Len())
	})

	t.Run("Nil", func(t *testing.T) {
		b := plugin.NewBroadcaster(plugin.Config{})
		assert.ErrorIs(t, b.Register(nil), plugin.ErrNilObserver)
	})

	t.Run("Unregister", func(t *testing.T) {
		b := plugin.NewBroadcaster(plugin.Config{Catalog: plugin.NewCatalog()})
		calls := 0
		o := plugin.Func("o", func(wire.Event) error { calls++; return nil })
		other := plugin.Func("other", func(wire.Event) error { return nil })

		require.NoError(t, b.Register(o))
		require.NoError(t, b.Register(other))
		assert.True(t, b.Unregister(o))
		assert.False(t, b.Unregister(o))

		b.Emit(wire.NewEvent(wire.EventInfo, wire.CodeNone, ""))
		assert.Equal(t, 0, calls)
		assert.Equal(t, []plugin.Observer{other}, b.List())
	})

	t.Run("UnregisterDuringEmit", func(t *testing.T) {
		b := plugin.NewBroadcaster(plugin.Config{Catalog: plugin.NewCatalog()})
		secondCalls := 0
		second := plugin.Func("second", func(wire.Event) error { secondCalls++; return nil })
		first := plugin.Func("first", func(wire.Event) error {
			b.Unregister(second)
			return nil
		})

		require.NoError(t, b.Register(first))
		require.NoError(t, b.Register(second))

		b.Emit(wire.NewEvent(wire.EventInfo, wire.CodeNone, ""))
		assert.Equal(t, 1, secondCalls, "snapshot taken before Emit still includes second")

		b.Emit(wire.NewEvent(wire.EventInfo, wire.CodeNone, ""))
		assert.Equal(t, 1, secondCalls)
	})
}

func TestCatalog(t *testing.T) {
	catalog := plugin.NewCatalog()
	catalog.Tag((*singletonObserver)(nil), plugin.Meta{Name: "only-one", Singleton: true})

	meta, ok := catalog.Lookup(&singletonObserver{id: 7})
	require.True(t, ok)
	assert.Equal(t, "only-one", meta.Name)

	b := plugin.NewBroadcaster(plugin.Config{Catalog: catalog})
	require.NoError(t, b.Register(&singletonObserver{id: 1}))
	assert.ErrorIs(t, b.Register(&singletonObserver{id: 2}), plugin.ErrDuplicateSingleton)

	catalog.Untag((*singletonObserver)(nil))
	_, ok = catalog.Lookup(&singletonObserver{})
	assert.False(t, ok)
}

func TestFilter(t *testing.T) {
	var got []wire.EventType
	inner := plugin.Func("inner", func(ev wire.Event) error {
		got = append(got, ev.Type)
		return nil
	})
	f := plugin.Filter(inner, wire.EventClose, wire.EventError)

	for _, typ := range []wire.EventType{wire.EventMessage, wire.EventClose, wire.EventInfo, wire.EventError} {
		require.NoError(t, f.Observe(wire.Event{Type: typ}))
	}
	assert.Equal(t, []wire.EventType{wire.EventClose, wire.EventError}, got)
	assert.Equal(t, "inner", f.(plugin.Named).Name())
}
