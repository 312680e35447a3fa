package provideradapter

import "github.com/socratic-council/council/pkg/transport"

func init() {
	RegisterFactory("deepseek", newDeepSeekAdapter)
}

func newDeepSeekAdapter(creds Credentials) (Adapter, error) {
	tr, err := transport.New(creds.ResolveTransportConfig())
	if err != nil {
		return nil, err
	}
	return &chatCompatAdapter{
		creds:          creds,
		transport:      tr,
		defaultBaseURL: "https://api.deepseek.com",
		path:           "/v1/chat/completions",
		tempMin:        0,
		tempMax:        2,
	}, nil
}
