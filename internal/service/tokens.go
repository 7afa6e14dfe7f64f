package service

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Кодировщики кешируются по имени модели, загрузка словаря дорогая.
var (
	encodersMu sync.Mutex
	encoders   = map[string]*tiktoken.Tiktoken{}
)

const fallbackEncoding = "cl100k_base"

// EstimateTokens оценивает число токенов в тексте. Для неизвестных моделей
// используется cl100k_base, при недоступности словаря - грубая оценка по длине.
func EstimateTokens(model, text string) int {
	if text == "" {
		return 0
	}
	if tke := encoderFor(model); tke != nil {
		return len(tke.Encode(text, nil, nil))
	}
	return len(text)/4 + 1
}

func encoderFor(model string) *tiktoken.Tiktoken {
	encodersMu.Lock()
	defer encodersMu.Unlock()

	if tke, ok := encoders[model]; ok {
		return tke
	}
	tke, err := tiktoken.EncodingForModel(model)
	if err != nil {
		tke, err = tiktoken.GetEncoding(fallbackEncoding)
	}
	if err != nil {
		tke = nil
	}
	encoders[model] = tke
	return tke
}
