package process

import "strings"

// DefaultPrompt is used when the caller supplies no instructions.
const DefaultPrompt = `
あなたはプロの書記です。アップロードされた音声ファイルを聞き取り、以下のフォーマットで議事録を作成してください。

# 議事録

## 1. 会議の概要
*   **日時/場所**: （音声から推測できる場合のみ記載、不明なら「不明」）
*   **主要テーマ**:

## 2. 決定事項
*   
*   

## 3. 議論の詳細（トピック別）
*   **[トピック名]**: 
    *   内容詳細...

## 4. ネクストアクション（ToDo）
*   [担当者名]: [タスク内容] （期限: 〇月〇日）

## 注意点
*   「えー」「あー」などのフィラーは削除してください。
*   話者が特定できる場合は「Aさん」「Bさん」のように書き分けてください。
`

// PromptOrDefault returns prompt, or DefaultPrompt when prompt is blank.
func PromptOrDefault(prompt string) string {
	if strings.TrimSpace(prompt) == "" {
		return DefaultPrompt
	}
	return prompt
}
