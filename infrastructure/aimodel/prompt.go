package aimodel

import (
	"fmt"
	"strings"
)

const teacherSystem = "You are a teacher preparing and grading free response questions for a student."

const studentSystem = "You are a student tasked with answering a free response question."

func generatePrompt(standard string, categories []string, maxScore float64, topic string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "The question should assess the student's knowledge of the %q standard.\n", standard)
	b.WriteString("All the context should be provided, do not refer students to outside sources.\n")
	b.WriteString("In the output, provide the following:\n")
	b.WriteString("the context for the question of at least 200 words,\n")
	b.WriteString("the free response question itself,\n")
	fmt.Fprintf(&b, "and a rubric that will be used to score the student's response on a 1 to %s scale.\n", scale(maxScore))
	b.WriteString("The question must be a single sentence.\n")
	if len(categories) > 0 {
		fmt.Fprintf(&b, "The rubric must only include the following categories: %s.\n", quoteList(categories))
	}
	fmt.Fprintf(&b, "The topic of the task is %s.", topic)

	return b.String()
}

func answerPrompt(standard, passage, question string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "The question assesses students knowledge of the %q standard.\n", standard)
	fmt.Fprintf(&b, "The context for the question is:\n%s\n", passage)
	fmt.Fprintf(&b, "The question is:\n%s\n", question)
	b.WriteString("Write your answer below:")

	return b.String()
}

func gradePrompt(standard string, categories []string, maxScore float64, passage, question, rubric, response string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "The question assesses the student's knowledge of the %q standard.\n", standard)
	fmt.Fprintf(&b, "The context for the question is:\n%s\n", passage)
	fmt.Fprintf(&b, "The question is:\n%s\n", question)
	fmt.Fprintf(&b, "Grade the answer according to the following rubric:\n%s\n", rubric)
	if len(categories) > 0 {
		fmt.Fprintf(&b, "Give one score from 1 to %s per rubric category, in this order: %s.\n", scale(maxScore), quoteList(categories))
	} else {
		fmt.Fprintf(&b, "Give one score from 1 to %s per rubric category.\n", scale(maxScore))
	}
	fmt.Fprintf(&b, "Student response:\n%s", response)

	return b.String()
}

func repairPrompt(cause error) string {
	return fmt.Sprintf("Your previous output could not be used: %v\n"+
		"Return the same content again as a single JSON object that matches the required schema, with no other text.", cause)
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, it := range items {
		quoted[i] = fmt.Sprintf("%q", it)
	}
	return strings.Join(quoted, ", ")
}
