package pipeline

// Task IDs of the built-in descriptors.
const (
	TaskResearch      TaskID = "research"
	TaskWrite         TaskID = "write"
	TaskReview        TaskID = "review"
	TaskProcedures    TaskID = "procedures"
	TaskPlan          TaskID = "plan"
	TaskRoadmapReview TaskID = "roadmap_review"
)

// ConsultationDescriptor is researcher → writer → reviewer.
func ConsultationDescriptor() Descriptor {
	return MustDescriptor("consultation",
		Task{
			ID:   TaskResearch,
			Role: RoleResearcher,
			Description: "راجع سؤال المستخدم ثم حلل المقاطع القانونية المسترجعة، ولكل مقطع اسم النظام وعنوان المادة أو رقمها والمحتوى والتعديلات إن وجدت والرابط.\n" +
				"حدد المواد المرتبطة مباشرة بالسؤال. إن لم تجد تطابقاً مباشراً فاستخرج الأحكام العامة أو لخص الأنظمة أو الفصول المنطبقة.\n" +
				"أرفق اسم النظام ورقم المادة أو عنوانها والرابط الصحيح مع كل عنصر.",
			ExpectedOutput: "قائمة منظمة بالمواد أو المبادئ القانونية ذات الصلة، لكل منها: اسم النظام، رقم المادة أو عنوانها، مقتطف من المحتوى، الرابط إن وجد.",
		},
		Task{
			ID:   TaskWrite,
			Role: RoleWriter,
			Description: "باستخدام مخرجات الباحث اكتب استشارة قانونية كاملة بالعربية.\n" +
				"- ابدأ بإجابة مباشرة وواضحة عن السؤال.\n" +
				"- أضف الشرح مع الاستشهادات القانونية (اسم النظام + رقم المادة + مقتطف).\n" +
				"- نسّق الإجابة بوضوح باستخدام Markdown (خط عريض، نقاط).\n" +
				"- أدرج روابط المصادر الصحيحة عند توفرها.\n" +
				"- تجنب الردود المبهمة أو الرافضة، ولا تقل إنه لا يوجد أساس قانوني إلا عند الضرورة القصوى.",
			ExpectedOutput: "استشارة قانونية واضحة ومنظمة وموثقة بالمصادر باللغة العربية.",
			DependsOn:      []TaskID{TaskResearch},
		},
		Task{
			ID:   TaskReview,
			Role: RoleReviewer,
			Description: "راجع الاستشارة التي كتبها الكاتب وتأكد من أنها دقيقة قانونياً ومبنية على الأنظمة السعودية، وأن لغتها العربية واضحة ومهنية، وأن أرقام المواد وأسماء الأنظمة والمصادر مذكورة.\n" +
				"يكون الرابط صحيحاً إذا كان من هيئة الخبراء ويبدأ بـ https://laws.boe.gov.sa/\n" +
				"أصلح أي مشكلة بنفسك. يجب أن تكون مخرجاتك النهائية الاستشارة فقط دون ملاحظات بالإنجليزية أو تعليقات إضافية.",
			ExpectedOutput: "الاستشارة القانونية النهائية باللغة العربية.",
			DependsOn:      []TaskID{TaskWrite},
		},
	)
}

// RoadmapDescriptor is procedure researcher → roadmap planner → roadmap reviewer.
func RoadmapDescriptor() Descriptor {
	return MustDescriptor("roadmap",
		Task{
			ID:             TaskProcedures,
			Role:           RoleProcedureResearcher,
			Description:    "استخراج الإجراءات والمدد والجهات المختصة ذات الصلة.",
			ExpectedOutput: "قائمة JSON داخل Markdown بتلميحات الإجراءات المستخرجة",
		},
		Task{
			ID:             TaskPlan,
			Role:           RoleRoadmapPlanner,
			Description:    "تحويل المقتطفات القانونية إلى خريطة طريق خطوة بخطوة.",
			ExpectedOutput: "خريطة طريق مرتبة بالعربية",
			DependsOn:      []TaskID{TaskProcedures},
		},
		Task{
			ID:             TaskRoadmapReview,
			Role:           RoleRoadmapReviewer,
			Description:    "التحقق من دقة خريطة الطريق وترتيبها ووضوحها قبل التسليم.",
			ExpectedOutput: "خريطة الطريق النهائية فقط",
			DependsOn:      []TaskID{TaskPlan},
		},
	)
}
