package conn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDSN(t *testing.T) {
	testCases := []struct {
		desc string
		opt  Option
		want string
	}{
		{desc: "defaults", opt: Option{}, want: "postgres://localhost:5432?sslmode=disable"},
		{
			desc: "full",
			opt:  Option{Host: "db", Port: 6543, User: "renko", Password: "p@ss", Database: "trading", SSLMode: "require", Params: map[string]string{"application_name": "renko", "": "x"}},
			want: "postgres://renko:p%40ss@db:6543/trading?application_name=renko&sslmode=require",
		},
		{desc: "user only", opt: Option{User: "renko"}, want: "postgres://renko@localhost:5432?sslmode=disable"},
		{desc: "conn string wins", opt: Option{ConnString: "postgres://x", Host: "db"}, want: "postgres://x"},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.opt.DSN())
		})
	}
}

func TestNilClient(t *testing.T) {
	var c *Client
	assert.Nil(t, c.DB())
	assert.NoError(t, c.Close())
}
