package recommendations

import (
	"sort"
	"strings"

	"github.com/FACorreiaa/go-poi-recommendations/internal/types"
)

const DefaultMaxVisitedPlaces = 3

// genericNouns are appended to the destination for every trip.
var genericNouns = map[types.Category][]string{
	types.CategoryRestaurant: {"맛집", "음식점", "현지맛집", "카페", "맛있는집"},
	types.CategoryActivity:   {"체험", "액티비티", "놀거리", "투어", "레저"},
	types.CategoryAttraction: {"관광지", "명소", "볼거리", "여행지", "랜드마크"},
}

type specializedEntry struct {
	keys    []string
	queries map[types.Category][]string
}

// specializedKeywords is ordered: the first entry whose key matches wins, so
// more specific destinations come first.
var specializedKeywords = []specializedEntry{
	{
		keys: []string{"제주도", "제주"},
		queries: map[types.Category][]string{
			types.CategoryRestaurant: {"제주 흑돼지", "제주 해산물", "제주 오메기떡", "제주 감귤"},
			types.CategoryActivity:   {"제주 승마", "제주 다이빙", "제주 패러글라이딩", "제주 올레길"},
			types.CategoryAttraction: {"성산일출봉", "한라산", "우도", "섭지코지"},
		},
	},
	{
		keys: []string{"부산"},
		queries: map[types.Category][]string{
			types.CategoryRestaurant: {"부산 회", "부산 밀면", "부산 씨앗호떡", "광안리 맛집"},
			types.CategoryActivity:   {"부산 해수욕", "부산 크루즈", "부산 온천", "부산 야경투어"},
			types.CategoryAttraction: {"광안대교", "해운대", "감천문화마을", "태종대"},
		},
	},
	{
		keys: []string{"서울"},
		queries: map[types.Category][]string{
			types.CategoryRestaurant: {"서울 한정식", "홍대 맛집", "강남 맛집", "명동 맛집"},
			types.CategoryActivity:   {"서울 한강", "서울 쇼핑", "서울 야경", "서울 궁궐투어"},
			types.CategoryAttraction: {"경복궁", "N서울타워", "명동", "동대문"},
		},
	},
	{
		keys: []string{"강릉"},
		queries: map[types.Category][]string{
			types.CategoryRestaurant: {"강릉 회", "강릉 초당두부", "강릉 커피", "강릉 감자옹심이"},
			types.CategoryActivity:   {"강릉 해수욕", "강릉 바이크", "강릉 바다낚시", "강릉 서핑"},
			types.CategoryAttraction: {"경포대", "정동진", "오죽헌", "안반데기"},
		},
	},
	{
		keys: []string{"전주"},
		queries: map[types.Category][]string{
			types.CategoryRestaurant: {"전주 비빔밥", "전주 한정식", "전주 콩나물국밥", "전주 막걸리"},
			types.CategoryActivity:   {"전주 한복체험", "전주 한옥마을", "전주 전통공예", "전주 문화체험"},
			types.CategoryAttraction: {"전주 한옥마을", "경기전", "오목대", "한국전통문화전당"},
		},
	},
	{
		keys: []string{"도쿄"},
		queries: map[types.Category][]string{
			types.CategoryRestaurant: {"도쿄 라멘", "도쿄 스시", "시부야 맛집", "하라주쿠 맛집"},
			types.CategoryActivity:   {"도쿄 쇼핑", "도쿄 디즈니랜드", "도쿄 온천", "도쿄 야경투어"},
			types.CategoryAttraction: {"도쿄 스카이트리", "아사쿠사", "시부야", "메이지 신궁"},
		},
	},
	{
		keys: []string{"일본"},
		queries: map[types.Category][]string{
			types.CategoryRestaurant: {"일본 라멘", "일본 스시", "일본 이자카야", "일본 현지맛집"},
			types.CategoryActivity:   {"일본 온천", "일본 쇼핑", "일본 테마파크", "일본 문화체험"},
			types.CategoryAttraction: {"일본 신사", "일본 성", "일본 정원", "일본 박물관"},
		},
	},
}

// styleCategories maps a normalized travel-style tag to the category whose
// query list gains "{destination} {tag}".
var styleCategories = map[string]types.Category{
	"맛집":   types.CategoryRestaurant,
	"미식":   types.CategoryRestaurant,
	"먹방":   types.CategoryRestaurant,
	"카페":   types.CategoryRestaurant,
	"디저트":  types.CategoryRestaurant,
	"food": types.CategoryRestaurant,

	"액티비티":      types.CategoryActivity,
	"체험":        types.CategoryActivity,
	"모험":        types.CategoryActivity,
	"레저":        types.CategoryActivity,
	"스포츠":       types.CategoryActivity,
	"서핑":        types.CategoryActivity,
	"등산":        types.CategoryActivity,
	"쇼핑":        types.CategoryActivity,
	"adventure": types.CategoryActivity,
	"activity":  types.CategoryActivity,

	"관광":      types.CategoryAttraction,
	"문화":      types.CategoryAttraction,
	"역사":      types.CategoryAttraction,
	"자연":      types.CategoryAttraction,
	"힐링":      types.CategoryAttraction,
	"사진":      types.CategoryAttraction,
	"야경":      types.CategoryAttraction,
	"culture": types.CategoryAttraction,
	"nature":  types.CategoryAttraction,
	"history": types.CategoryAttraction,
}

// KeywordGenerator expands a trip into per-category search queries. It is
// pure: equal trips always yield equal query lists.
type KeywordGenerator struct {
	maxVisited int
}

func NewKeywordGenerator(maxVisited int) *KeywordGenerator {
	if maxVisited <= 0 {
		maxVisited = DefaultMaxVisitedPlaces
	}
	return &KeywordGenerator{maxVisited: maxVisited}
}

func (g *KeywordGenerator) Generate(trip types.TripContext) map[types.Category][]string {
	dest := strings.Join(strings.Fields(trip.Destination), " ")
	out := make(map[types.Category][]string, 3)
	if dest == "" {
		return out
	}

	special := matchSpecialized(dest)
	styles := normalizedSet(trip.StyleTags)
	visited := g.visitedPlaces(dest, trip.VisitedPlaceNames)

	for _, cat := range types.Categories() {
		var qs []string
		for _, noun := range genericNouns[cat] {
			qs = append(qs, dest+" "+noun)
		}
		if special != nil {
			qs = append(qs, special.queries[cat]...)
		}
		for _, tag := range styles {
			if styleCategories[tag] == cat {
				qs = append(qs, dest+" "+tag)
			}
		}
		for _, place := range visited {
			qs = append(qs, place+" 근처 "+cat.SearchNoun())
		}
		out[cat] = uniqueInOrder(qs)
	}
	return out
}

func matchSpecialized(dest string) *specializedEntry {
	norm := types.NormalizeText(dest)
	for i := range specializedKeywords {
		for _, k := range specializedKeywords[i].keys {
			if norm == k {
				return &specializedKeywords[i]
			}
		}
	}
	for i := range specializedKeywords {
		for _, k := range specializedKeywords[i].keys {
			if strings.Contains(norm, k) {
				return &specializedKeywords[i]
			}
		}
	}
	return nil
}

// visitedPlaces returns up to maxVisited distinct visited names, sorted, with
// the destination itself excluded.
func (g *KeywordGenerator) visitedPlaces(dest string, names []string) []string {
	destKey := types.NormalizeText(dest)
	seen := make(map[string]struct{}, len(names))
	var out []string
	for _, n := range names {
		n = strings.Join(strings.Fields(n), " ")
		key := types.NormalizeText(n)
		if key == "" || key == destKey {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	if len(out) > g.maxVisited {
		out = out[:g.maxVisited]
	}
	return out
}

func normalizedSet(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		k := types.NormalizeText(v)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func uniqueInOrder(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, q := range in {
		if _, dup := seen[q]; dup {
			continue
		}
		seen[q] = struct{}{}
		out = append(out, q)
	}
	return out
}
