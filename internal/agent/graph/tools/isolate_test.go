package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"
)

type echoInput struct {
	Query string `json:"query"`
}

type echoOutput struct {
	Echo string `json:"echo"`
}

func newEchoTool(name string, failWith error, panicWith any) tool.InvokableTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: name,
			Desc: "test tool",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {Type: "string", Required: true},
			}),
		},
		func(ctx context.Context, in *echoInput) (*echoOutput, error) {
			if panicWith != nil {
				panic(panicWith)
			}
			if failWith != nil {
				return nil, failWith
			}
			return &echoOutput{Echo: in.Query}, nil
		},
	)
}

func TestIsolatedPassesThroughSuccess(t *testing.T) {
	iso := Isolated(newEchoTool("echo", nil, nil))

	out, err := iso.InvokableRun(context.Background(), `{"query":"hello"}`)
	require.NoError(t, err)
	require.Contains(t, out, "hello")
}

func TestIsolatedConvertsErrorToResult(t *testing.T) {
	iso := Isolated(newEchoTool("echo", errors.New("backend down"), nil))

	out, err := iso.InvokableRun(context.Background(), `{"query":"hello"}`)
	require.NoError(t, err)

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	require.Equal(t, "backend down", payload["error"])
	require.Equal(t, "echo", payload["tool"])
}

func TestIsolatedRecoversFromPanic(t *testing.T) {
	iso := Isolated(newEchoTool("echo", nil, "boom"))

	out, err := iso.InvokableRun(context.Background(), `{"query":"hello"}`)
	require.NoError(t, err)
	require.Contains(t, out, "panic")
	require.Contains(t, out, "boom")
}

func TestIsolatedKeepsToolInfo(t *testing.T) {
	iso := Isolated(newEchoTool("echo", nil, nil))

	info, err := iso.Info(context.Background())
	require.NoError(t, err)
	require.Equal(t, "echo", info.Name)
}
