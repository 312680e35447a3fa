package provideradapter

import "github.com/socratic-council/council/pkg/transport"

func init() {
	RegisterFactory("kimi", newKimiAdapter)
}

func newKimiAdapter(creds Credentials) (Adapter, error) {
	tr, err := transport.New(creds.ResolveTransportConfig())
	if err != nil {
		return nil, err
	}
	return &chatCompatAdapter{
		creds:          creds,
		transport:      tr,
		defaultBaseURL: "https://api.moonshot.ai",
		path:           "/v1/chat/completions",
		tempMin:        0,
		tempMax:        1,
		useSearch:      true,
	}, nil
}
