package catalog

import "github.com/openmake/ensemble/internal/domain"

// DefaultAgentID is the well-known fallback agent. Routing never returns
// an id that does not resolve; when nothing matches, it returns this one.
const DefaultAgentID = "general"

// builtinAgents is the static specialist roster. Keywords mix Korean and
// English because the production traffic does.
func builtinAgents() []domain.AgentDefinition {
	return []domain.AgentDefinition{
		{
			ID:          "general",
			Name:        "제너럴 어시스턴트",
			Icon:        "🤖",
			Category:    "general",
			Description: "분야를 가리지 않는 범용 어시스턴트",
			Keywords:    []string{"질문", "도움", "help", "general"},
		},
		{
			ID:          "backend-engineer",
			Name:        "백엔드 엔지니어",
			Icon:        "⚙️",
			Category:    "development",
			Description: "서버, API, 데이터베이스 설계와 구현 전문가",
			Keywords: []string{
				"백엔드", "서버", "api", "rest", "grpc", "데이터베이스", "db",
				"파이썬", "python", "자바", "java", "go", "node", "spring",
				"장고", "django", "fastapi", "sql",
			},
		},
		{
			ID:          "frontend-developer",
			Name:        "프론트엔드 개발자",
			Icon:        "🖥️",
			Category:    "development",
			Description: "웹 UI와 클라이언트 애플리케이션 전문가",
			Keywords: []string{
				"프론트엔드", "리액트", "react", "vue", "svelte", "css", "html",
				"javascript", "타입스크립트", "typescript", "웹", "화면", "컴포넌트",
			},
		},
		{
			ID:          "mobile-developer",
			Name:        "모바일 개발자",
			Icon:        "📱",
			Category:    "development",
			Description: "iOS/Android 앱 개발 전문가",
			Keywords: []string{
				"모바일", "앱", "ios", "android", "안드로이드", "flutter",
				"플러터", "swift", "kotlin", "코틀린",
			},
		},
		{
			ID:          "devops-engineer",
			Name:        "데브옵스 엔지니어",
			Icon:        "🚀",
			Category:    "infrastructure",
			Description: "배포, 인프라, 운영 자동화 전문가",
			Keywords: []string{
				"배포", "인프라", "도커", "docker", "쿠버네티스", "kubernetes",
				"k8s", "aws", "클라우드", "cloud", "ci", "cd", "모니터링", "terraform",
			},
		},
		{
			ID:          "security-specialist",
			Name:        "보안 전문가",
			Icon:        "🔒",
			Category:    "infrastructure",
			Description: "애플리케이션 보안과 취약점 분석 전문가",
			Keywords: []string{
				"보안", "취약점", "해킹", "암호화", "인증", "security", "auth", "oauth",
			},
		},
		{
			ID:          "data-scientist",
			Name:        "데이터 사이언티스트",
			Icon:        "📊",
			Category:    "data",
			Description: "데이터 분석, 머신러닝 모델링 전문가",
			Keywords: []string{
				"데이터", "분석", "머신러닝", "딥러닝", "모델", "통계", "예측",
				"pandas", "numpy", "시각화", "학습", "ml",
			},
		},
		{
			ID:          "data-engineer",
			Name:        "데이터 엔지니어",
			Icon:        "🛠️",
			Category:    "data",
			Description: "데이터 파이프라인과 수집 인프라 전문가",
			Keywords: []string{
				"파이프라인", "etl", "수집", "크롤링", "spark", "카프카", "kafka",
				"웨어하우스", "airflow",
			},
		},
		{
			ID:          "ux-designer",
			Name:        "UX 디자이너",
			Icon:        "🎨",
			Category:    "design",
			Description: "사용자 경험과 인터페이스 디자인 전문가",
			Keywords: []string{
				"디자인", "ux", "ui", "사용자 경험", "와이어프레임", "프로토타입",
				"피그마", "figma", "레이아웃",
			},
		},
		{
			ID:          "product-manager",
			Name:        "프로덕트 매니저",
			Icon:        "📋",
			Category:    "business",
			Description: "제품 기획과 요구사항 정의 전문가",
			Keywords: []string{
				"기획", "제품", "요구사항", "로드맵", "우선순위", "mvp", "스펙",
				"백로그", "pm",
			},
		},
		{
			ID:          "business-analyst",
			Name:        "비즈니스 애널리스트",
			Icon:        "📈",
			Category:    "business",
			Description: "시장 분석과 사업 전략 전문가",
			Keywords: []string{
				"사업", "비즈니스", "수익", "시장", "전략", "경쟁", "매출", "btob", "수요",
			},
		},
		{
			ID:          "marketing-strategist",
			Name:        "마케팅 전략가",
			Icon:        "📣",
			Category:    "business",
			Description: "마케팅 캠페인과 브랜딩 전문가",
			Keywords: []string{
				"마케팅", "광고", "홍보", "브랜딩", "sns", "캠페인", "seo", "바이럴",
			},
		},
		{
			ID:          "financial-advisor",
			Name:        "금융 어드바이저",
			Icon:        "💰",
			Category:    "finance",
			Description: "투자와 재무 관리 전문가",
			Keywords: []string{
				"금융", "투자", "주식", "재무", "세금", "자산", "예산", "연금", "대출",
			},
		},
		{
			ID:          "education-tutor",
			Name:        "학습 튜터",
			Icon:        "📚",
			Category:    "education",
			Description: "개념 설명과 학습 지도 전문가",
			Keywords: []string{
				"공부", "학습", "교육", "강의", "시험", "개념", "설명", "튜터",
			},
		},
		{
			ID:          "tech-writer",
			Name:        "테크니컬 라이터",
			Icon:        "✍️",
			Category:    "content",
			Description: "기술 문서와 콘텐츠 작성 전문가",
			Keywords: []string{
				"문서", "글쓰기", "블로그", "콘텐츠", "번역", "요약", "정리", "리포트",
			},
		},
	}
}
