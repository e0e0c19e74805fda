package mysql

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_RejectsBadDSN(t *testing.T) {
	_, err := New(context.Background(), "not a dsn")
	assert.ErrorContains(t, err, "parse mysql dsn failed")

	_, err = New(context.Background(), "root:pw@tcp(127.0.0.1:3306)/docqa")
	assert.ErrorContains(t, err, "must set parseTime=true")
}
