package catalog

import "github.com/openmake/ensemble/internal/domain"

// builtinTopics is the static topic-category table used by the intent
// classifier. Order matters: it breaks ties between equally-scored
// categories, so entries are listed roughly by traffic share.
func builtinTopics() []domain.TopicCategory {
	return []domain.TopicCategory{
		{
			Name: "프로그래밍/개발",
			Patterns: []string{
				"코드", "코딩", "프로그래밍", "개발", "api", "rest", "버그",
				"함수", "파이썬", "python", "자바", "java", "javascript",
				"리액트", "react", "서버", "데이터베이스", "sql", "구현", "라이브러리",
			},
			Agents:     []string{"backend-engineer", "frontend-developer", "mobile-developer"},
			Expansions: []string{"백엔드", "프론트엔드", "프레임워크"},
		},
		{
			Name: "데이터/분석",
			Patterns: []string{
				"데이터", "분석", "통계", "머신러닝", "딥러닝", "모델",
				"예측", "시각화", "pandas", "크롤링", "학습 데이터",
			},
			Agents:     []string{"data-scientist", "data-engineer"},
			Expansions: []string{"인공지능", "ai 모델"},
		},
		{
			Name: "인프라/운영",
			Patterns: []string{
				"배포", "인프라", "도커", "docker", "쿠버네티스", "kubernetes",
				"aws", "클라우드", "모니터링", "장애", "스케일",
			},
			Agents:     []string{"devops-engineer", "security-specialist"},
			Expansions: []string{"데브옵스", "운영 자동화"},
		},
		{
			Name: "디자인/UX",
			Patterns: []string{
				"디자인", "ux", "ui", "화면 설계", "사용자 경험", "와이어프레임",
				"프로토타입", "피그마", "figma",
			},
			Agents:     []string{"ux-designer", "frontend-developer"},
			Expansions: []string{"인터페이스", "사용성"},
		},
		{
			Name: "비즈니스/기획",
			Patterns: []string{
				"기획", "사업", "비즈니스", "전략", "시장", "수익",
				"요구사항", "로드맵", "mvp", "창업",
			},
			Agents:     []string{"product-manager", "business-analyst"},
			Expansions: []string{"사업 계획", "제품 전략"},
		},
		{
			Name: "마케팅/홍보",
			Patterns: []string{
				"마케팅", "광고", "홍보", "브랜딩", "sns", "캠페인", "seo", "바이럴",
			},
			Agents:     []string{"marketing-strategist", "business-analyst"},
			Expansions: []string{"퍼포먼스 마케팅"},
		},
		{
			Name: "금융/투자",
			Patterns: []string{
				"금융", "투자", "주식", "재무", "세금", "예산", "자산", "연금",
			},
			Agents:     []string{"financial-advisor"},
			Expansions: []string{"재테크"},
		},
		{
			Name: "교육/학습",
			Patterns: []string{
				"공부", "학습", "교육", "강의", "시험", "개념 설명", "알려줘",
			},
			Agents:     []string{"education-tutor", "tech-writer"},
			Expansions: []string{"입문", "기초"},
		},
		{
			Name: "콘텐츠/글쓰기",
			Patterns: []string{
				"글", "블로그", "문서", "요약", "번역", "콘텐츠", "작성", "에세이",
			},
			Agents:     []string{"tech-writer", "marketing-strategist"},
			Expansions: []string{"카피라이팅"},
		},
	}
}
