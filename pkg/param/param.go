package param

import (
	"fmt"
	"log"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ssm"
)

var params *Params
var awsSession *session.Session

var paramLookup = map[string]string{
	"GEMINI_API_KEY":               "/launchpad/gemini_api_key",
	"ANTHROPIC_API_KEY":            "/launchpad/anthropic_api_key",
	"GROQ_API_KEY":                 "/launchpad/groq_api_key",
	"OPENROUTER_API_KEY":           "/launchpad/openrouter_api_key",
	"OLLAMA_HOST":                  "",
	"LAUNCHPAD_PG_URI":             "/launchpad/pg_uri",
	"LAUNCHPAD_CENTRIFUGO_ADDRESS": "/launchpad/centrifugo_address",
	"LAUNCHPAD_CENTRIFUGO_API_KEY": "/launchpad/centrifugo_api_key",
	"LAUNCHPAD_SLACK_TOKEN":        "/launchpad/slack_token",
	"LAUNCHPAD_SLACK_CHANNEL":      "/launchpad/slack_channel",
}

type Params struct {
	GeminiAPIKey      string
	AnthropicAPIKey   string
	GroqAPIKey        string
	OpenRouterAPIKey  string
	OllamaHost        string
	PGURI             string
	CentrifugoAddress string
	CentrifugoAPIKey  string
	SlackToken        string
	SlackChannel      string
}

// IsInitialized reports whether Init has run. Local commands use it to fall back to env-only config.
func IsInitialized() bool {
	return params != nil
}

func Get() Params {
	if params == nil {
		panic("params not initialized")
	}
	return *params
}

func Init(sess *session.Session) error {
	awsSession = sess

	var paramsMap map[string]string
	if os.Getenv("USE_EC2_PARAMETERS") == "true" && sess != nil {
		p, err := GetParamsFromSSM(paramLookup)
		if err != nil {
			return fmt.Errorf("get from ssm: %w", err)
		}
		paramsMap = p
	} else {
		paramsMap = GetParamsFromEnv(paramLookup)
	}

	params = &Params{
		GeminiAPIKey:      paramsMap["GEMINI_API_KEY"],
		AnthropicAPIKey:   paramsMap["ANTHROPIC_API_KEY"],
		GroqAPIKey:        paramsMap["GROQ_API_KEY"],
		OpenRouterAPIKey:  paramsMap["OPENROUTER_API_KEY"],
		OllamaHost:        paramsMap["OLLAMA_HOST"],
		PGURI:             paramsMap["LAUNCHPAD_PG_URI"],
		CentrifugoAddress: paramsMap["LAUNCHPAD_CENTRIFUGO_ADDRESS"],
		CentrifugoAPIKey:  paramsMap["LAUNCHPAD_CENTRIFUGO_API_KEY"],
		SlackToken:        paramsMap["LAUNCHPAD_SLACK_TOKEN"],
		SlackChannel:      paramsMap["LAUNCHPAD_SLACK_CHANNEL"],
	}

	return nil
}

func GetParamsFromSSM(paramLookup map[string]string) (map[string]string, error) {
	svc := ssm.New(awsSession)

	params := map[string]string{}
	reverseLookup := map[string][]string{}

	lookup := []*string{}
	for envName, ssmName := range paramLookup {
		if ssmName == "" {
			params[envName] = os.Getenv(envName)
			continue
		}

		lookup = append(lookup, aws.String(ssmName))
		if _, ok := reverseLookup[ssmName]; !ok {
			reverseLookup[ssmName] = []string{}
		}
		reverseLookup[ssmName] = append(reverseLookup[ssmName], envName)
	}
	batch := chunkSlice(lookup, 10)

	for _, names := range batch {
		input := &ssm.GetParametersInput{
			Names:          names,
			WithDecryption: aws.Bool(true),
		}
		output, err := svc.GetParameters(input)
		if err != nil {
			return params, fmt.Errorf("call get parameters: %w", err)
		}

		for _, p := range output.InvalidParameters {
			log.Printf("Ssm param %s invalid", *p)
		}

		for _, p := range output.Parameters {
			for _, envName := range reverseLookup[*p.Name] {
				params[envName] = *p.Value
			}
		}
	}

	return params, nil
}

func GetParamsFromEnv(paramLookup map[string]string) map[string]string {
	params := map[string]string{}
	for envName := range paramLookup {
		params[envName] = os.Getenv(envName)
	}
	return params
}

func chunkSlice(s []*string, n int) [][]*string {
	var chunked [][]*string
	for i := 0; i < len(s); i += n {
		end := i + n
		if end > len(s) {
			end = len(s)
		}
		chunked = append(chunked, s[i:end])
	}
	return chunked
}
