package statuscheck

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(ctx context.Context) error { return p.err }

func TestCheckRedis(t *testing.T) {
	c := New(Options{Redis: fakePinger{}})
	assert.True(t, c.checkRedis(context.Background()).OK)

	c = New(Options{Redis: fakePinger{err: errors.New("connection refused")}})
	st := c.checkRedis(context.Background())
	assert.False(t, st.OK)
	assert.Contains(t, st.Message, "connection refused")

	c = New(Options{})
	assert.False(t, c.checkRedis(context.Background()).OK)
}

func TestCheckResultDir(t *testing.T) {
	c := New(Options{ResultDir: t.TempDir()})
	assert.True(t, c.checkResultDir().OK)

	c = New(Options{ResultDir: ""})
	assert.False(t, c.checkResultDir().OK)

	c = New(Options{ResultDir: "/proc/nonexistent/nowhere"})
	assert.False(t, c.checkResultDir().OK)
}

func TestCheckS3NotConfigured(t *testing.T) {
	c := New(Options{})
	st := c.checkS3(context.Background())
	assert.False(t, st.OK)
	assert.Equal(t, "Bucket not configured", st.Message)
}
