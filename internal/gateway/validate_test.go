package gateway

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateCredentials_MissingFieldsNoNetwork(t *testing.T) {
	conn := &countingConnector{tools: sampleTools}
	creds := testCreds("")
	creds.ClientSecret = ""

	res := ValidateCredentials(context.Background(), conn.connect, creds, Options{}, nil)
	assert.False(t, res.Valid)
	assert.Equal(t, KindMissingFields, res.ErrorType)
	assert.Contains(t, res.Error, "projectKey")
	assert.Contains(t, res.Error, "clientSecret")
	assert.Equal(t, int32(0), conn.attempts.Load())
}

func TestValidateCredentials_TokenSatisfiesClientPair(t *testing.T) {
	creds := testCreds("demo")
	creds.ClientID, creds.ClientSecret, creds.AccessToken = "", "", "tok"
	assert.Nil(t, CheckFields(creds))
}

func TestValidateCredentials_InvalidURL(t *testing.T) {
	conn := &countingConnector{}
	creds := testCreds("demo")
	creds.APIURL = "not a url"
	res := ValidateCredentials(context.Background(), conn.connect, creds, Options{}, nil)
	assert.Equal(t, KindInvalidURL, res.ErrorType)
	assert.Equal(t, int32(0), conn.attempts.Load())

	creds.APIURL = "ftp://api.example.com"
	assert.Equal(t, KindInvalidURL, CheckFields(creds).Kind)
}

func TestValidateCredentials_Success(t *testing.T) {
	conn := &countingConnector{tools: sampleTools}
	res := ValidateCredentials(context.Background(), conn.connect, testCreds("demo"), Options{}, nil)
	assert.True(t, res.Valid)
	assert.Equal(t, 2, res.ToolCount)
	assert.Equal(t, []string{"create_cart", "read_products"}, res.ToolNames)
	assert.True(t, conn.session(0).closed.Load())
}

func TestValidateCredentials_Classification(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{errors.New("401 Unauthorized"), KindAuthentication},
		{errors.New("invalid_client: bad secret"), KindAuthentication},
		{errors.New("403 Forbidden insufficient_scope"), KindPermission},
		{errors.New("404: project 'x' not found"), KindNotFound},
		{errors.New("getaddrinfo ENOTFOUND api.example"), KindNetwork},
		{errors.New("connect ECONNREFUSED 127.0.0.1:443"), KindNetwork},
		{fmt.Errorf("wrap: %w", context.DeadlineExceeded), KindTimeout},
		{errors.New("request timed out"), KindTimeout},
		{errors.New("something odd"), KindUnknown},
	}
	for _, c := range cases {
		conn := &countingConnector{err: c.err}
		res := ValidateCredentials(context.Background(), conn.connect, testCreds("demo"), Options{}, nil)
		assert.False(t, res.Valid)
		assert.Equal(t, c.want, res.ErrorType, c.err.Error())
		assert.NotEmpty(t, res.Error)
	}
}

func TestIsMutating(t *testing.T) {
	for name, want := range map[string]bool{
		"create_cart":      true,
		"update-customer":  true,
		"deleteOrder":      true,
		"remove_line_item": true,
		"read_products":    false,
		"list_carts":       false,
	} {
		assert.Equal(t, want, IsMutating(name), name)
	}
}
