package agent

import (
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/wwwzy/PumpCPQ/internal/model"
)

// QuestionSystemPrompt 问题生成的系统提示词
// 包含动态变量: {field}, {hint}, {reminder}, {customer}
const QuestionSystemPrompt = `You are a friendly sales engineer preparing a quotation for an industrial pump.
Ask the customer exactly ONE short question to obtain: {field}.
What a good answer looks like: {hint}
{reminder}
Rules:
1. Ask only for the item above, never for anything else.
2. Keep it to one or two sentences and do not repeat earlier questions word for word.
3. Address the customer by name if known: {customer}
4. Reply with the question text only.`

const questionUserPrompt = `Conversation so far:
{history}`

// NewQuestionTemplate 创建问题生成模板，由 LLMPhraser 格式化后发送给模型
func NewQuestionTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(schema.FString,
		schema.SystemMessage(QuestionSystemPrompt),
		schema.UserMessage(questionUserPrompt),
	)
}

// fieldLabel 是字段在提示词和提醒语中的名称。
var fieldLabel = map[model.Field]string{
	model.FieldName:        "the customer's name",
	model.FieldCompany:     "the company name (optional, personal use is fine)",
	model.FieldContact:     "an email address or phone number",
	model.FieldGPM:         "the required flow rate in gallons per minute",
	model.FieldHeadFt:      "the required total head in feet",
	model.FieldFluid:       "the fluid being pumped",
	model.FieldPower:       "the available power supply (230V single-phase or 460V three-phase)",
	model.FieldEnvironment: "whether the site is an ATEX (explosive atmosphere) area",
	model.FieldMaterial:    "the preferred construction material (cast iron or stainless steel)",
	model.FieldMaintenance: "whether to favour lowest cost (budget) or low maintenance",
}

var fieldHint = map[model.Field]string{
	model.FieldName:        `"Dana Smith"`,
	model.FieldCompany:     `"Acme Water" or "skip"`,
	model.FieldContact:     `"dana@acme.com" or "555-123-4567"`,
	model.FieldGPM:         `"50 GPM"`,
	model.FieldHeadFt:      `"80 feet"`,
	model.FieldFluid:       `"clean water", "wastewater", "oil"`,
	model.FieldPower:       `"460V three-phase"`,
	model.FieldEnvironment: `"non-ATEX" or "yes, ATEX zone"`,
	model.FieldMaterial:    `"stainless", "cast iron" or "no preference"`,
	model.FieldMaintenance: `"budget" or "low maintenance"`,
}

// templateQuestions 是确定性问题文本。
var templateQuestions = map[model.Field]string{
	model.FieldName:        "What name should I put on the quote?",
	model.FieldCompany:     `Which company is this quote for? Reply "skip" if it's for personal use.`,
	model.FieldContact:     "What's the best email address or phone number to send the quote to?",
	model.FieldGPM:         "What flow rate do you need, in gallons per minute (GPM)?",
	model.FieldHeadFt:      "What total head (lift) does the pump need to deliver, in feet?",
	model.FieldFluid:       "What fluid will the pump handle? For example water, wastewater, oil, chemicals or slurry.",
	model.FieldPower:       "What power supply is available on site: 230V single-phase or 460V three-phase?",
	model.FieldEnvironment: "Will the pump be installed in an ATEX (explosive atmosphere) area?",
	model.FieldMaterial:    "Do you prefer cast iron or stainless steel construction? With no preference I'll go with cast iron.",
	model.FieldMaintenance: "Should we optimise for the lowest upfront cost (budget) or for low maintenance?",
}

// 开场问姓名时允许跳过。
const openingNameQuestion = "Hi! I can help you size and price a pump. Before we start, may I have your name? (Feel free to skip.)"
