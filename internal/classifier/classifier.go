package classifier

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/review-agent/backend/internal/llm"
	"github.com/review-agent/backend/internal/metrics"
	"github.com/review-agent/backend/internal/storage/models"
	"github.com/review-agent/backend/pkg/logger"
)

type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

const systemPrompt = `당신은 모바일 앱 리뷰를 분류하는 전문가입니다.
주어진 리뷰를 다음 카테고리 중 하나로 분류해주세요:

- 포인트_관련: 포인트 미지급, 포인트 감소, 포인트 적립 문제
  예시: "광고보고 포인트 지급 안됨", "포인트가 줄어들었어요"
- 광고_관련: 광고 시청 오류, 광고 길이 문제, 광고 포인트 미지급
  예시: "광고가 안 나와요", "15초 광고라고 했는데 더 길어요"
- 기능_오류: 수면모드, 걸음수 추적, 앱 크래시 등 기능 문제
  예시: "수면모드 버튼이 안 눌려요", "앱이 계속 꺼져요"
- 접근성: VoiceOver, 시각장애 등 접근성 문제
  예시: "VoiceOver 사용이 어려워요"
- 상품_교환: 기프트카드, 교환상품, 교환 포인트 변경
  예시: "기프트카드가 안 와요", "교환 포인트가 올랐어요"
- 친구_초대: 초대코드, 친구초대 보상
  예시: "초대코드 입력했는데", "친구초대 보상"
- 문의_누락: 문의 답변 없음, 채널톡 응답 없음
  예시: "문의했는데 답변이 없어요"
- 칭찬: 긍정적 피드백, 만족 표현, 감사 인사
  예시: "앱이 좋아요", "감사합니다"
- 기타: 위 카테고리에 해당하지 않는 경우

오직 카테고리명만 반환해주세요.`

type Classifier struct {
	completer   Completer
	temperature float32
	maxTokens   int
}

func New(completer Completer, temperature float32) *Classifier {
	return &Classifier{completer: completer, temperature: temperature, maxTokens: 20}
}

// Classify maps review content onto one of models.Categories. Any model
// failure or unrecognised answer yields models.CategoryOther.
func (c *Classifier) Classify(ctx context.Context, content string) models.Category {
	resp, err := c.completer.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   "리뷰 내용: " + content,
		Temperature:  c.temperature,
		MaxTokens:    c.maxTokens,
	})
	if err != nil {
		logger.Warn("Review classification failed", zap.Error(err))
		metrics.FallbacksUsed.WithLabelValues("classify", "").Inc()
		return models.CategoryOther
	}

	category := models.Category(strings.TrimSpace(resp.Content))
	if !category.Valid() {
		logger.Debug("Unrecognised category from model", zap.String("answer", resp.Content))
		category = models.CategoryOther
	}

	metrics.CategoriesAssigned.WithLabelValues(string(category)).Inc()
	return category
}
