package responder

import (
	"fmt"
	"strings"

	"github.com/review-agent/backend/internal/storage/models"
)

type promptTemplate struct {
	system   string
	user     string
	fallback string
}

var krTemplate = promptTemplate{
	system: `당신은 머니워크 운영팀을 대신하여 공식적이고 정중한 리뷰 답변을 작성하는 어시스턴트입니다.

다음 공식 답변 형식을 반드시 따라 답변을 작성하세요:

1. "안녕하세요, 머니워크 운영팀입니다"로 시작
2. "소중한 시간을 내어 리뷰를 남겨주셔서 감사합니다."
3. 리뷰 내용에 맞는 구체적이고 정중한 응답 (불편에 대한 사과 포함)
4. 해결책이나 안내사항 제시
5. "**1:1 문의**" 또는 "**앱 내 1:1 문의**"로 추가 도움 유도

답변 예시:
"이용 중 불편을 겪으셨다니 죄송한 마음입니다. 정확한 확인을 위해 **앱 내 1:1 문의**를 남겨주시면 신속하게 도움을 드리겠습니다."

작성 가이드라인:
- 공식적이고 정중한 톤 유지
- **볼드체**로 중요 부분 강조
- 사과와 감사 표현 적극 활용
- {max_length}자 이내로 작성

참고할 지식베이스:
{knowledge_context}`,
	user: `작성자: {author}
국가: {country}
리뷰 카테고리: {category}
리뷰 내용: "{review_content}"

위 리뷰에 대한 머니워크 운영팀 공식 스타일의 한국어 답변을 작성해주세요.`,
	fallback: `**안녕하세요, 머니워크 운영팀입니다.**

소중한 시간을 내어 리뷰를 남겨주셔서 감사합니다.

더 정확한 확인을 위해 **앱 내 1:1 문의**를 남겨주시면 신속하게 도움을 드리겠습니다.

지속적으로 더 나은 서비스 제공을 위해 노력하겠습니다.`,
}

var usTemplate = promptTemplate{
	system: `You are a review assistant that writes responses on behalf of the MoneyWalk team.

Example responses:
- Step tracking: "Hi [Name], sorry for the confusion! Step data may sync differently depending on your phone's motion settings. Please check that motion permission is enabled in Settings."
- Accessibility: "Hi [Name], thank you for your feedback and for using VoiceOver. We're working to improve accessibility."
- Reward delays: "Hi [Name], sorry to hear that. Gift card delivery may take some time. If you still haven't received it, please contact us through the in-app Help Center."

Guidelines:
1. Start with a personalized greeting: "Hi [Name]" (only when a name is given)
2. Provide a specific solution or explanation
3. Direct users to the "in-app Help Center" for further help
4. Use a friendly and helpful tone
5. Keep within {max_length} characters

Knowledge base for reference:
{knowledge_context}`,
	user: `Author: {author}
Country: {country}
Review Category: {category}
Review Content: "{review_content}"

Please write a natural and helpful English response to the above review.`,
	fallback: "Hi, thank you for your valuable feedback. We're continuously working to improve our service. " +
		"If you need more help, please contact us through the in-app Help Center. Thank you!",
}

// templates maps a country to its prompt; any country missing here uses
// usTemplate.
var templates = map[models.Country]promptTemplate{
	models.CountryKR: krTemplate,
	models.CountryUS: usTemplate,
}

func templateFor(country models.Country) promptTemplate {
	if t, ok := templates[country]; ok {
		return t
	}
	return usTemplate
}

// FallbackText is the canned reply used when generation fails.
func FallbackText(country models.Country) string {
	return templateFor(country).fallback
}

type promptVars struct {
	author    string
	country   models.Country
	category  models.Category
	content   string
	context   string
	maxLength int
}

func (t promptTemplate) render(v promptVars) (system, user string) {
	r := strings.NewReplacer(
		"{author}", v.author,
		"{country}", string(v.country),
		"{category}", string(v.category),
		"{review_content}", v.content,
		"{knowledge_context}", v.context,
		"{max_length}", fmt.Sprintf("%d", v.maxLength),
	)
	return r.Replace(t.system), r.Replace(t.user)
}

// knowledgeContext renders retrieved chunks as numbered blocks.
func knowledgeContext(chunks []models.KnowledgeChunk) string {
	blocks := make([]string, len(chunks))
	for i, ch := range chunks {
		blocks[i] = fmt.Sprintf("문서 %d: %s", i+1, ch.Text)
	}
	return strings.Join(blocks, "\n\n")
}

// sanitizeAuthor drops names that are long or look like handles.
func sanitizeAuthor(author string) string {
	if author == "" || len([]rune(author)) > 10 || strings.ContainsAny(author, "@#$%") {
		return ""
	}
	return author
}
