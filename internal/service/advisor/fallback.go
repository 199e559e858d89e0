package advisor

import (
	"fmt"
	"strings"

	"github.com/finwell/finwell-backend/internal/domain"
)

// Savings-rate bands used by the fallback synthesizer.
const (
	healthySavingsRate = 0.20
	heavyRecurringLoad = 0.40 // recurring obligations above this share of income
	dominantCatShare   = 0.35 // single category above this share of expenses
)

// fallbackStrings holds the localized template text for one language.
type fallbackStrings struct {
	summaryHealthy  string // %s month, %.0f%% savings rate
	summaryThin     string
	summaryNegative string
	summaryNoIncome string

	findingTopCategory  string // %s category, %.0f%% share
	findingOverBudget   string // %s category, %.0f%% of limit
	findingRecurring    string // %.0f%% of income
	findingSpendOK      string
	actionSetAside      string // %.0f amount, %s currency
	actionReviewBudget  string // %s category
	actionTrimCategory  string // %s category
	actionTrackDaily    string
	warnOverspend       string
	warnRecurring       string
	savingsHealthy      string
	savingsThin         string
	savingsNegative     string
	savingsTarget       string
	savingsSuggestion   string
	investReady         string
	investNotReady      string
	investSuggestion    string
	optimizeSuggestion  string // %s category
	tipAutomate         string
	tipReviewRecurring  string
	tipWeeklyCheck      string
}

var fallbackLocales = map[domain.Language]fallbackStrings{
	domain.LanguageEN: {
		summaryHealthy:  "In %s you saved %.0f%% of your income. Your finances look solid this month.",
		summaryThin:     "In %s you saved %.0f%% of your income. There is room to build a stronger buffer.",
		summaryNegative: "In %s you spent more than you earned. A short-term plan will help you get back on track.",
		summaryNoIncome: "No income was recorded for %s, so this overview focuses on your spending.",

		findingTopCategory: "%s is your largest expense category at %.0f%% of total spending.",
		findingOverBudget:  "The %s budget is at %.0f%% of its limit.",
		findingRecurring:   "Fixed recurring payments take up %.0f%% of your income.",
		findingSpendOK:     "Spending stayed within all configured budgets.",
		actionSetAside:     "Set aside %.0f %s at the start of next month before other spending.",
		actionReviewBudget: "Review the %s budget and decide whether to raise the limit or cut usage.",
		actionTrimCategory: "Pick two or three %s expenses to drop next month.",
		actionTrackDaily:   "Record expenses as they happen for two weeks to spot leaks.",
		warnOverspend:      "You are over budget in at least one category; repeated months like this erode savings.",
		warnRecurring:      "Recurring obligations are high relative to income; a single income disruption would hurt.",
		savingsHealthy:     "Your savings rate is at or above the healthy 20% mark.",
		savingsThin:        "Your savings rate is positive but below the recommended 20%.",
		savingsNegative:    "You are currently not saving; expenses exceed income.",
		savingsTarget:      "20%",
		savingsSuggestion:  "Automate a transfer to savings on payday so saving happens first.",
		investReady:        "With a stable savings buffer you can consider low-cost diversified investing.",
		investNotReady:     "Build an emergency fund of three months of expenses before investing.",
		investSuggestion:   "Start small and regular rather than waiting for a large lump sum.",
		optimizeSuggestion: "Compare providers for %s; switching is often the fastest saving.",
		tipAutomate:        "Automate fixed payments to avoid late fees.",
		tipReviewRecurring: "Re-check subscriptions quarterly and cancel the ones you stopped using.",
		tipWeeklyCheck:     "A ten-minute weekly money check-in beats a monthly surprise.",
	},
	domain.LanguageTR: {
		summaryHealthy:  "%s ayında gelirinizin %%%.0f kadarını biriktirdiniz. Bu ay finansal durumunuz sağlam görünüyor.",
		summaryThin:     "%s ayında gelirinizin %%%.0f kadarını biriktirdiniz. Daha güçlü bir birikim için alan var.",
		summaryNegative: "%s ayında kazandığınızdan fazla harcadınız. Kısa vadeli bir plan toparlanmanıza yardımcı olur.",
		summaryNoIncome: "%s için gelir kaydı yok, bu özet harcamalarınıza odaklanıyor.",

		findingTopCategory: "%s, toplam harcamanın %%%.0f payıyla en büyük gider kaleminiz.",
		findingOverBudget:  "%s bütçesi limitinin %%%.0f seviyesinde.",
		findingRecurring:   "Sabit düzenli ödemeler gelirinizin %%%.0f kadarını alıyor.",
		findingSpendOK:     "Harcamalar tanımlı tüm bütçelerin içinde kaldı.",
		actionSetAside:     "Gelecek ay başında diğer harcamalardan önce %.0f %s kenara ayırın.",
		actionReviewBudget: "%s bütçesini gözden geçirin; limiti artırmak mı yoksa harcamayı kısmak mı gerektiğine karar verin.",
		actionTrimCategory: "Gelecek ay vazgeçilecek iki üç %s harcaması seçin.",
		actionTrackDaily:   "Sızıntıları görmek için iki hafta boyunca harcamaları anında kaydedin.",
		warnOverspend:      "En az bir kategoride bütçe aşımı var; bu tablonun tekrarı birikimleri eritir.",
		warnRecurring:      "Düzenli yükümlülükler gelire göre yüksek; tek bir gelir kesintisi zorlayıcı olur.",
		savingsHealthy:     "Tasarruf oranınız sağlıklı kabul edilen %20'nin üzerinde.",
		savingsThin:        "Tasarruf oranınız pozitif ama önerilen %20'nin altında.",
		savingsNegative:    "Şu anda birikim yapamıyorsunuz; giderler geliri aşıyor.",
		savingsTarget:      "%20",
		savingsSuggestion:  "Maaş gününde otomatik transfer kurun, birikim önce gerçekleşsin.",
		investReady:        "İstikrarlı bir birikimle düşük maliyetli, çeşitlendirilmiş yatırımı düşünebilirsiniz.",
		investNotReady:     "Yatırımdan önce üç aylık gideri karşılayacak bir acil durum fonu oluşturun.",
		investSuggestion:   "Büyük bir toplu parayı beklemek yerine küçük ve düzenli başlayın.",
		optimizeSuggestion: "%s için sağlayıcıları karşılaştırın; geçiş çoğu zaman en hızlı tasarruftur.",
		tipAutomate:        "Gecikme cezalarından kaçınmak için sabit ödemeleri otomatikleştirin.",
		tipReviewRecurring: "Abonelikleri üç ayda bir gözden geçirip kullanmadıklarınızı iptal edin.",
		tipWeeklyCheck:     "Haftalık on dakikalık para kontrolü, ay sonu sürprizinden iyidir.",
	},
	domain.LanguageRU: {
		summaryHealthy:  "В %s вы отложили %.0f%% дохода. В этом месяце финансы выглядят устойчиво.",
		summaryThin:     "В %s вы отложили %.0f%% дохода. Есть возможность создать более прочную подушку.",
		summaryNegative: "В %s расходы превысили доходы. Краткосрочный план поможет выправить ситуацию.",
		summaryNoIncome: "За %s не зафиксировано доходов, поэтому обзор сосредоточен на расходах.",

		findingTopCategory: "%s — крупнейшая категория расходов, %.0f%% всех трат.",
		findingOverBudget:  "Бюджет «%s» израсходован на %.0f%% от лимита.",
		findingRecurring:   "Регулярные платежи занимают %.0f%% дохода.",
		findingSpendOK:     "Расходы остались в пределах всех заданных бюджетов.",
		actionSetAside:     "В начале следующего месяца отложите %.0f %s до остальных трат.",
		actionReviewBudget: "Пересмотрите бюджет «%s»: поднять лимит или сократить расходы.",
		actionTrimCategory: "Выберите два-три расхода в категории «%s», от которых откажетесь в следующем месяце.",
		actionTrackDaily:   "Две недели записывайте расходы сразу, чтобы найти утечки.",
		warnOverspend:      "Минимум одна категория вышла за бюджет; повторение таких месяцев съедает накопления.",
		warnRecurring:      "Регулярные обязательства велики относительно дохода; перебой с доходом станет болезненным.",
		savingsHealthy:     "Норма сбережений на уровне здоровых 20% или выше.",
		savingsThin:        "Норма сбережений положительная, но ниже рекомендуемых 20%.",
		savingsNegative:    "Сейчас вы не откладываете: расходы превышают доходы.",
		savingsTarget:      "20%",
		savingsSuggestion:  "Настройте автоперевод на накопительный счёт в день зарплаты.",
		investReady:        "С устойчивой подушкой можно рассматривать недорогие диверсифицированные инвестиции.",
		investNotReady:     "Перед инвестициями соберите резерв на три месяца расходов.",
		investSuggestion:   "Начинайте с малого и регулярно, не дожидаясь крупной суммы.",
		optimizeSuggestion: "Сравните поставщиков для категории «%s» — смена тарифа часто даёт быструю экономию.",
		tipAutomate:        "Автоматизируйте обязательные платежи, чтобы избежать пеней.",
		tipReviewRecurring: "Раз в квартал пересматривайте подписки и отменяйте неиспользуемые.",
		tipWeeklyCheck:     "Десятиминутная еженедельная проверка бюджета лучше сюрприза в конце месяца.",
	},
}

// fallbackAdvice synthesizes deterministic advice from the snapshot alone.
// It is used whenever the provider is unusable so the feature never shows an
// empty state. Same snapshot and language always produce the same advice.
func fallbackAdvice(snapshot domain.MonthSnapshot, language domain.Language) domain.AdviceBody {
	loc, ok := fallbackLocales[language]
	if !ok {
		loc = fallbackLocales[domain.LanguageEN]
	}

	savingsPct := snapshot.SavingsRate * 100
	over := snapshot.OverBudget()
	recurringShare := 0.0
	if snapshot.TotalIncome > 0 {
		recurringShare = snapshot.RecurringLoad() / snapshot.TotalIncome
	}

	var summary string
	switch {
	case snapshot.TotalIncome <= 0:
		summary = fmt.Sprintf(loc.summaryNoIncome, snapshot.Month)
	case snapshot.SavingsRate < 0:
		summary = fmt.Sprintf(loc.summaryNegative, snapshot.Month)
	case snapshot.SavingsRate >= healthySavingsRate:
		summary = fmt.Sprintf(loc.summaryHealthy, snapshot.Month, savingsPct)
	default:
		summary = fmt.Sprintf(loc.summaryThin, snapshot.Month, savingsPct)
	}

	var findings []string
	if len(snapshot.TopCategories) > 0 {
		top := snapshot.TopCategories[0]
		findings = append(findings, fmt.Sprintf(loc.findingTopCategory, top.Category, top.Share*100))
	}
	for _, b := range over {
		findings = append(findings, fmt.Sprintf(loc.findingOverBudget, b.Category, b.Ratio*100))
	}
	if recurringShare > 0 {
		findings = append(findings, fmt.Sprintf(loc.findingRecurring, recurringShare*100))
	}
	if len(over) == 0 && len(snapshot.Budgets) > 0 {
		findings = append(findings, loc.findingSpendOK)
	}
	if len(findings) == 0 {
		findings = append(findings, summary)
	}

	var actions []string
	if snapshot.TotalIncome > 0 && snapshot.SavingsRate < healthySavingsRate {
		target := snapshot.TotalIncome * healthySavingsRate
		actions = append(actions, fmt.Sprintf(loc.actionSetAside, target, strings.ToUpper(snapshot.Currency)))
	}
	for _, b := range over {
		actions = append(actions, fmt.Sprintf(loc.actionReviewBudget, b.Category))
	}
	if len(snapshot.TopCategories) > 0 && snapshot.TopCategories[0].Share >= dominantCatShare {
		actions = append(actions, fmt.Sprintf(loc.actionTrimCategory, snapshot.TopCategories[0].Category))
	}
	if len(actions) == 0 {
		actions = append(actions, loc.actionTrackDaily)
	}

	var warnings []string
	if len(over) > 0 {
		warnings = append(warnings, loc.warnOverspend)
	}
	if recurringShare >= heavyRecurringLoad {
		warnings = append(warnings, loc.warnRecurring)
	}

	var savingsAssessment string
	switch {
	case snapshot.SavingsRate >= healthySavingsRate:
		savingsAssessment = loc.savingsHealthy
	case snapshot.SavingsRate > 0:
		savingsAssessment = loc.savingsThin
	default:
		savingsAssessment = loc.savingsNegative
	}

	investment := domain.InvestmentAdvice{
		Readiness:   loc.investNotReady,
		Suggestions: []string{loc.investSuggestion},
	}
	if snapshot.SavingsRate >= healthySavingsRate {
		investment.Readiness = loc.investReady
	}

	var focus []string
	var optSuggestions []string
	for i, c := range snapshot.TopCategories {
		if i >= 2 {
			break
		}
		focus = append(focus, c.Category)
		optSuggestions = append(optSuggestions, fmt.Sprintf(loc.optimizeSuggestion, c.Category))
	}

	return domain.AdviceBody{
		Summary:          summary,
		TopFindings:      findings,
		SuggestedActions: actions,
		Warnings:         warnings,
		Savings: domain.SavingsAdvice{
			Assessment:  savingsAssessment,
			TargetRate:  loc.savingsTarget,
			Suggestions: []string{loc.savingsSuggestion},
		},
		Investment: investment,
		ExpenseOptimization: domain.ExpenseOptimization{
			FocusCategories: focus,
			Suggestions:     optSuggestions,
		},
		Tips: []string{loc.tipAutomate, loc.tipReviewRecurring, loc.tipWeeklyCheck},
	}
}
