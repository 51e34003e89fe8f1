package recognizer

import (
	"EyeWear/internal/config"
	"EyeWear/internal/service/image"
	"context"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/responses"
	"go.uber.org/zap"
)

const defaultPrompt = "Read all text in this image exactly as written, in reading order. Reply with the text only."

// OpenAI распознаёт текст моделью с визуальным входом.
type OpenAI struct {
	logger *zap.SugaredLogger
	client *openai.Client
	model  string
	prompt string
	proc   *image.Processor
}

func NewOpenAI(client *openai.Client, cfg config.OCRConfig, proc *image.Processor, logger *zap.SugaredLogger) *OpenAI {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	model := cfg.Model
	if model == "" {
		model = openai.ChatModelGPT4o
	}
	prompt := strings.TrimSpace(cfg.Prompt)
	if prompt == "" {
		prompt = defaultPrompt
	}
	if proc == nil {
		proc = image.NewProcessor(cfg.MaxImageWidth)
	}
	return &OpenAI{logger: logger, client: client, model: model, prompt: prompt, proc: proc}
}

func (o *OpenAI) Recognize(ctx context.Context, path string) (string, error) {
	img, err := o.proc.Prepare(path)
	if err != nil {
		return "", err
	}
	o.logger.Debugw("Sending image to OpenAI", "path", path, "width", img.Width, "height", img.Height, "bytes", len(img.Data))

	resp, err := o.client.Responses.New(ctx, responses.ResponseNewParams{
		Model: o.model,
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: responses.ResponseInputParam{
				responses.ResponseInputItemParamOfMessage(
					responses.ResponseInputMessageContentListParam{
						{
							OfInputText: &responses.ResponseInputTextParam{
								Text: o.prompt,
							},
						},
						{
							OfInputImage: &responses.ResponseInputImageParam{
								Detail:   responses.ResponseInputImageDetailHigh,
								ImageURL: openai.String(img.DataURL()),
							},
						},
					},
					responses.EasyInputMessageRoleUser,
				),
			},
		},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.OutputText()), nil
}
