package pipeline

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/qanoneed/internal/domain"
	"github.com/kailas-cloud/qanoneed/internal/jsonfence"
)

// Role is the closed set of stage personas. Each role owns its system
// prompt, its prompt template and its output contract.
type Role int

const (
	RoleResearcher Role = iota + 1
	RoleWriter
	RoleReviewer
	RoleProcedureResearcher
	RoleRoadmapPlanner
	RoleRoadmapReviewer
)

// RoadmapContextRunes caps the context given to the procedure researcher.
const RoadmapContextRunes = 4000

// Input is what a stage sees: the request plus the outputs of its dependencies.
type Input struct {
	Question string
	Context  string
	Domain   domain.Domain
	// Deps holds dependency outputs in DependsOn order. Set by the engine.
	Deps []StageOutput
}

type roleSpec struct {
	name     string
	system   string
	prompt   func(t Task, in Input) string
	validate func(out string) error
}

var roles = map[Role]roleSpec{
	RoleResearcher: {
		name:     "researcher",
		system:   researcherSystem,
		prompt:   researcherPrompt,
		validate: nonEmpty,
	},
	RoleWriter: {
		name:     "writer",
		system:   writerSystem,
		prompt:   writerPrompt,
		validate: nonEmpty,
	},
	RoleReviewer: {
		name:     "reviewer",
		system:   reviewerSystem,
		prompt:   reviewerPrompt,
		validate: nonEmpty,
	},
	RoleProcedureResearcher: {
		name:     "procedure_researcher",
		system:   "أنت محلل قانوني أول متخصص في نظام الشركات السعودي والبوابات الحكومية الإلكترونية.",
		prompt:   procedureResearcherPrompt,
		validate: containsJSON,
	},
	RoleRoadmapPlanner: {
		name:     "roadmap_planner",
		system:   "أنت محامٍ متمرس في الشركات يعد خططاً زمنية للعملاء.",
		prompt:   roadmapPlannerPrompt,
		validate: nonEmpty,
	},
	RoleRoadmapReviewer: {
		name:     "roadmap_reviewer",
		system:   "أنت رئيس العمليات القانونية وتضمن أعلى جودة للمخرجات.",
		prompt:   roadmapReviewerPrompt,
		validate: nonEmpty,
	},
}

func (r Role) valid() bool {
	_, ok := roles[r]
	return ok
}

func (r Role) String() string {
	if s, ok := roles[r]; ok {
		return s.name
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// System returns the persona sent as the system message.
func (r Role) System() string { return roles[r].system }

// Prompt renders the user message for task t.
func (r Role) Prompt(t Task, in Input) string {
	s, ok := roles[r]
	if !ok {
		return ""
	}
	return s.prompt(t, in)
}

// Validate checks a stage output against the role's contract.
func (r Role) Validate(out string) error {
	s, ok := roles[r]
	if !ok {
		return fmt.Errorf("unknown role %d", int(r))
	}
	return s.validate(out)
}

func nonEmpty(out string) error {
	if strings.TrimSpace(out) == "" {
		return fmt.Errorf("empty output")
	}
	return nil
}

func containsJSON(out string) error {
	if err := nonEmpty(out); err != nil {
		return err
	}
	var v any
	if err := jsonfence.Decode(out, &v); err != nil {
		return fmt.Errorf("output has no parseable json: %w", err)
	}
	return nil
}

const researcherSystem = `أنت باحث قانوني متخصص في الأنظمة السعودية.
مهمتك تحليل سؤال المستخدم وتحديد النصوص النظامية ذات الصلة مع بياناتها الوصفية.
لكل نص تستشهد به اذكر اسم النظام ورقم المادة أو عنوانها ورابط المصدر الصحيح إن وجد.
إذا لم تجد مادة مطابقة مباشرة فاستخرج الأحكام العامة أو التعريفات أو ملخص النظام ذي الصلة.
إذا كان للمادة تعديلات فاذكرها بوصفها صيغة أحدث أو رأياً بديلاً.`

const writerSystem = `أنت كاتب قانوني ماهر وملم بالأنظمة السعودية.
تكتب ردوداً واضحة ودقيقة يسهل على عامة الناس فهمها.
ابدأ كل استشارة بإجابة مباشرة ثم الشرح مع الاستشهاد باسم النظام ورقم المادة ورابط المصدر الصحيح عند توفره.
إذا كان المحتوى غامضاً فاستخدم التفكير القانوني لصياغة إجابة مفيدة مبنية على المبادئ.
اختم كل استشارة بما يلي:

مع أطيب التحيات،
قانونيد`

const reviewerSystem = `أنت مستشار قانوني أول في مكتب محاماة سعودي مرموق.
تراجع جميع الردود القانونية قبل تسليمها للعميل وتتأكد من صحة جميع الروابط المذكورة.
تضمن الوضوح والدقة والاكتمال في كل استشارة.`

func researcherPrompt(t Task, in Input) string {
	var b strings.Builder
	writeSection(&b, "المهمة", t.Description)
	if in.Domain != "" {
		b.WriteString("المجال القانوني: " + in.Domain.String() + "\n\n")
	}
	writeSection(&b, "سؤال المستخدم", in.Question)
	writeSection(&b, "النصوص القانونية المسترجعة", in.Context)
	writeSection(&b, "المخرجات المتوقعة", t.ExpectedOutput)
	return strings.TrimSpace(b.String())
}

func writerPrompt(t Task, in Input) string {
	var b strings.Builder
	writeSection(&b, "المهمة", t.Description)
	writeSection(&b, "سؤال المستخدم", in.Question)
	writeSection(&b, "مخرجات الباحث", depsText(in))
	writeSection(&b, "النصوص القانونية المسترجعة", in.Context)
	writeSection(&b, "المخرجات المتوقعة", t.ExpectedOutput)
	return strings.TrimSpace(b.String())
}

func reviewerPrompt(t Task, in Input) string {
	var b strings.Builder
	writeSection(&b, "المهمة", t.Description)
	writeSection(&b, "الاستشارة المراد مراجعتها", "---\n"+depsText(in)+"\n---")
	writeSection(&b, "المخرجات المتوقعة", t.ExpectedOutput)
	return strings.TrimSpace(b.String())
}

const procedureResearchTemplate = `أنت باحث مختص في الإجراءات القانونية السعودية.
لديك سؤال المستخدم التالي:
"%s"

استخرج من مقاطع النظام التالية **كل المواد أو الأوامر** التي تتضمن
خطوات أو متطلبات أو مدد زمنية أو جهات مختصّة تتعلق بالسؤال.

صيغة الإخراج المطلوبة:
JSON بداخل Markdown block يحتوي قائمة عناصر، كلّ عنصر:
- "step_hint": نص يصف الخطوة (اجعلها فعلاً أمرًا: "حجز الاسم التجاري"، "توثيق عقد التأسيس" …)
- "article": نص المادة أو المصدر
- "authority": الجهة المختصة إن وُجدت
- "keywords": قائمة كلمات مفتاحية تساعد الكاتب لاحقًا

<النظام>
%s
</النظام>`

func procedureResearcherPrompt(t Task, in Input) string {
	p := fmt.Sprintf(procedureResearchTemplate, in.Question, truncateRunes(in.Context, RoadmapContextRunes))
	if t.ExpectedOutput != "" {
		p += "\n\nالمخرجات المتوقعة: " + t.ExpectedOutput
	}
	return p
}

const roadmapPlanTemplate = `أنت خبير تخطيط قانوني سعودي.
مهمتك تحويل مخرجات الباحث + خبرتك العملية إلى خريطة طريق مُفصَّلة.

— تعليمات التنسيق —
استخدم عناصر HTML مخصَّصة ستُعرَض في الموقع. لكل خطوة أنشئ الكتلة الآتية:

<div class="roadmap-step">
  <h3>١. <span class="step-title">عنوان الخطوة</span></h3>
  <ul class="step-meta">
    <li><strong>المدة المتوقعة:</strong> 3–5 أيام</li>
    <li><strong>الجهة المختصة:</strong> وزارة التجارة</li>
  </ul>
  <p class="step-desc">وصف تفصيلي شامل يشرح ما يجب عمله وأي مستندات مطلوبة.</p>
  <p class="step-obst"><strong>التحديات:</strong> ... • <em>كيفية التغلب:</em> ...</p>
</div>

↳ يجب ترك سطر فارغ بين كل div والآخر
↳ استخدم الأرقام العربية (١،٢،٣) في العناوين
↳ إذا لم تتوافر مدة دقيقة اكتب «≈» قبل الرقم
↳ يجب أن يكون النص بالعربية الفصحى وبأسلوب مهني واضح`

func roadmapPlannerPrompt(t Task, in Input) string {
	var b strings.Builder
	b.WriteString(roadmapPlanTemplate + "\n\n")
	writeSection(&b, "سؤال المستخدم", in.Question)
	writeSection(&b, "مخرجات الباحث", depsText(in))
	writeSection(&b, "المخرجات المتوقعة", t.ExpectedOutput)
	return strings.TrimSpace(b.String())
}

const roadmapReviewTemplate = `أنت مدير استشارات قانونية.
راجع خريطة الطريق التالية:
---
%s
---

تحقّق أن ترتيب الخطوات منطقي، المدد مقبولة، الأسماء الرسمية صحيحة.
أضف أو صحّح إن لزم ثم أعد الخريطة بصيغتها النهائية.
لا تكتب أي تعليق خارجي؛ أعد الخريطة فقط.`

func roadmapReviewerPrompt(_ Task, in Input) string {
	return fmt.Sprintf(roadmapReviewTemplate, depsText(in))
}

// DirectPrompt is the single-call answer used after a stage failure.
func DirectPrompt(in Input) string {
	var b strings.Builder
	b.WriteString("أجب عن سؤال المستخدم إجابة قانونية مباشرة بالعربية مستنداً إلى النصوص التالية فقط، مع ذكر اسم النظام ورقم المادة.\n\n")
	writeSection(&b, "سؤال المستخدم", in.Question)
	writeSection(&b, "النصوص القانونية المسترجعة", in.Context)
	return strings.TrimSpace(b.String())
}

func writeSection(b *strings.Builder, title, body string) {
	if strings.TrimSpace(body) == "" {
		return
	}
	b.WriteString("# " + title + "\n" + body + "\n\n")
}

func depsText(in Input) string {
	parts := make([]string, 0, len(in.Deps))
	for _, d := range in.Deps {
		parts = append(parts, strings.TrimSpace(d.Raw))
	}
	return strings.Join(parts, "\n\n")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
