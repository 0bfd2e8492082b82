package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

type fakeSSM struct {
	out  *ssm.GetParameterOutput
	err  error
	seen *ssm.GetParameterInput
}

func (f *fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.seen = in
	return f.out, f.err
}

func strPtr(s string) *string { return &s }

func TestGetParameterDecrypts(t *testing.T) {
	api := &fakeSSM{out: &ssm.GetParameterOutput{Parameter: &types.Parameter{
		Name:  strPtr("/relay/API_KEY"),
		Value: strPtr("s3cret"),
		Type:  types.ParameterTypeSecureString,
	}}}
	store, err := New(api)
	require.NoError(t, err)

	v, err := store.GetParameter(context.Background(), " /relay/API_KEY ")
	require.NoError(t, err)
	require.Equal(t, "s3cret", v)
	require.Equal(t, "/relay/API_KEY", *api.seen.Name)
	require.True(t, *api.seen.WithDecryption)
}

func TestGetParameterMissingValue(t *testing.T) {
	store, err := New(&fakeSSM{out: &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: strPtr("p")}}})
	require.NoError(t, err)

	_, err = store.GetParameter(context.Background(), "p")
	require.ErrorContains(t, err, "no value")
}

func TestGetParameterAPIError(t *testing.T) {
	store, err := New(&fakeSSM{err: errors.New("access denied")})
	require.NoError(t, err)

	_, err = store.GetParameter(context.Background(), "p")
	require.ErrorContains(t, err, "access denied")
}

func TestGetParameterEmptyName(t *testing.T) {
	store, err := New(&fakeSSM{})
	require.NoError(t, err)

	_, err = store.GetParameter(context.Background(), "   ")
	require.ErrorContains(t, err, "required")
}

func TestNewNilAPI(t *testing.T) {
	_, err := New(nil)
	require.ErrorContains(t, err, "must not be nil")

	_, err = (&ParamStore{}).GetParameter(context.Background(), "p")
	require.ErrorContains(t, err, "not initialized")
}
