package recommendations

import (
	"fmt"
	"strings"

	"github.com/FACorreiaa/go-poi-recommendations/internal/types"
)

const rankingSystemPrompt = `당신은 여행지 추천 전문가입니다.
반드시 사용자가 제공한 후보 목록 안에서만 장소를 고르고, 장소 이름은 목록에 적힌 그대로 사용하세요.
응답은 JSON 외의 어떤 텍스트도 포함하지 마세요.`

// buildRankingPrompt lists every candidate grouped by category together with
// the trip preferences and the exact output contract.
func buildRankingPrompt(trip types.TripContext, buckets map[types.Category][]types.PlaceCandidate, wrapObject bool) string {
	var b strings.Builder

	fmt.Fprintf(&b, "여행지: %s\n", strings.TrimSpace(trip.Destination))
	if len(trip.StyleTags) > 0 {
		fmt.Fprintf(&b, "여행 스타일: %s\n", strings.Join(trip.StyleTags, ", "))
	}
	if len(trip.VisitedPlaceNames) > 0 {
		fmt.Fprintf(&b, "방문 예정 장소: %s\n", strings.Join(trip.VisitedPlaceNames, ", "))
	}

	b.WriteString("\n검색된 후보 장소:\n")
	for _, cat := range types.Categories() {
		bucket := buckets[cat]
		if len(bucket) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n[%s / %s]\n", cat, cat.Label())
		for i, c := range bucket {
			fmt.Fprintf(&b, "%d. %s | 주소: %s | 분류: %s", i+1, c.RawName, c.RawAddress, c.RawCategoryLabel)
			if c.Phone != "" {
				fmt.Fprintf(&b, " | 전화: %s", c.Phone)
			}
			if c.ProviderDistanceHint != nil {
				fmt.Fprintf(&b, " | 거리: %dm", *c.ProviderDistanceHint)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString(`
규칙:
1. 위 후보 목록에 있는 장소만 선택하고 이름을 그대로 복사할 것.
2. 카테고리마다 최대 3개, 전체 최대 9개.
3. 여행 스타일과 방문 예정 장소와의 관련성이 높은 곳을 우선할 것.
4. description은 50자 내외의 한국어 한 문장.
5. category는 restaurant, activity, attraction 중 하나.
6. accessibilityHint는 "도보 10분", "차량 15분" 같은 예상 접근성.
`)

	item := `{"name": "후보 이름 그대로", "description": "설명", "category": "restaurant", "accessibilityHint": "도보 10분"}`
	if wrapObject {
		fmt.Fprintf(&b, "\n응답 형식 (JSON 객체):\n{\"recommendations\": [%s]}\n", item)
	} else {
		fmt.Fprintf(&b, "\n응답 형식 (JSON 배열):\n[%s]\n", item)
	}
	return b.String()
}
